package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/streamgridgo/internal/ctxlog"
)

// ValidateRegistry checks that every option-bearing calculator describes its
// options consistently, so that config errors are never blamed on a broken
// registration.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var problems []string

	for _, name := range r.Names() {
		reg, _ := r.Lookup(name)
		spec := reg.Options
		if spec == nil {
			continue
		}
		if spec.Extension == "" && spec.TypeURL == "" {
			problems = append(problems, fmt.Sprintf("calculator '%s': options need an extension name or a type URL", name))
		}
		if !spec.Type.IsObjectType() {
			problems = append(problems, fmt.Sprintf("calculator '%s': options type must be an object, got %s", name, spec.Type.FriendlyName()))
		}
		logger.Debug("Calculator options validated.", "name", name, "extension", spec.Extension, "type_url", spec.TypeURL)
	}

	if len(problems) > 0 {
		return errors.New("registry validation failed:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
