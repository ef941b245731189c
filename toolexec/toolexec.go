// Copyright 2019 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package toolexec runs external command-line tools and captures their
// results. Tools are located eagerly via Lookup so that a missing binary is
// reported before any work starts, not halfway through a batch.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Result holds the captured output of one tool invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Tool is an external executable resolved to an absolute path.
type Tool struct {
	name string
	path string
}

// Lookup resolves name in PATH. It returns an error of kind NotExist if the
// executable cannot be found.
func Lookup(name string) (*Tool, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("required tool %q not found in PATH", name))
	}
	return &Tool{name: name, path: path}, nil
}

// Check resolves every name in names and reports all missing executables in a
// single error.
func Check(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.E(errors.NotExist,
			fmt.Sprintf("required tools not found in PATH: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Name returns the name the tool was looked up under.
func (t *Tool) Name() string { return t.name }

// Path returns the resolved executable path.
func (t *Tool) Path() string { return t.path }

// Run executes the tool with the given arguments and waits for it to finish.
// stdout and stderr are captured in the returned Result even when the tool
// fails. A positive timeout bounds the invocation; expiry kills the child and
// yields an error of kind Timeout. Cancelling ctx also kills the child.
func (t *Tool) Run(ctx context.Context, timeout time.Duration, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, t.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug.Printf("exec: %s %s", t.name, strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, errors.E(errors.Timeout,
				fmt.Sprintf("%s %s: timed out after %v", t.name, strings.Join(args, " "), timeout))
		}
		if ctx.Err() == context.Canceled {
			return res, errors.E(errors.Canceled, fmt.Sprintf("%s: cancelled", t.name))
		}
		return res, errors.E(fmt.Sprintf("%s %s: exit status %d: %s",
			t.name, strings.Join(args, " "), res.ExitCode, lastLine(res.Stderr)), err)
	}
	log.Debug.Printf("exec: %s finished in %v", t.name, time.Since(start))
	return res, nil
}

// lastLine extracts the final non-empty line of s. Tools like prefetch print
// progress first and the actual complaint last.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
