// Package portid parses the "TAG:index:name" port strings used to connect
// calculator nodes to streams and side packets, and groups the ports of one
// node into a TagMap.
//
// A port string names the stream it binds to and, optionally, the tag and
// index under which the calculator addresses it:
//
//	frames                 untagged, index implied by position
//	IMAGE:frames           tag IMAGE, index 0
//	IMAGE:1:frames         tag IMAGE, index 1
//
// Tags are upper case, stream names lower case. Within one TagMap the indexes
// of every tag run contiguously from 0 and no stream name appears twice.
package portid
