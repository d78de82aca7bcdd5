// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package golden reads the expected results of running a test program.
package golden

import (
	"bufio"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var lineRe = regexp.MustCompile(`^(args|exit|output)(?:\s+(.*))?$`)

// Result is what running a program should produce.
type Result struct {
	Program string   // Base name of the program.
	Args    []string // Arguments after the program name.
	Exit    int      // Value returned from main or passed to exit.
	Output  string   // Everything written to standard output.
}

// ReadTestData loads a "golden" test data file for programfile.  Each line
// is one of
//
//	args "quoted" "strings"
//	exit N
//	output "quoted string"
//
// Output lines accumulate.  Blank lines and lines starting with # are ignored.
func ReadTestData(file io.Reader, programfile string) (*Result, error) {
	r := &Result{Program: filepath.Base(programfile)}
	scanner := bufio.NewScanner(file)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		glog.V(2).Infof("'%s'\n", line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		match := lineRe.FindStringSubmatch(line)
		if match == nil {
			return nil, errors.Errorf("%s:%d: unrecognised line %q", programfile, n, line)
		}
		switch match[1] {
		case "args":
			args, err := quoted(match[2])
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", programfile, n)
			}
			r.Args = append(r.Args, args...)
		case "exit":
			v, err := strconv.Atoi(match[2])
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: bad exit status", programfile, n)
			}
			r.Exit = v
		case "output":
			s, err := quoted(match[2])
			if err != nil || len(s) != 1 {
				return nil, errors.Errorf("%s:%d: output takes one quoted string", programfile, n)
			}
			r.Output += s[0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// quoted splits s into a sequence of Go quoted strings.
func quoted(s string) ([]string, error) {
	var r []string
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		q, err := strconv.QuotedPrefix(s)
		if err != nil {
			return nil, errors.Wrapf(err, "bad string at %q", s)
		}
		v, err := strconv.Unquote(q)
		if err != nil {
			return nil, err
		}
		r = append(r, v)
		s = s[len(q):]
	}
	return r, nil
}
