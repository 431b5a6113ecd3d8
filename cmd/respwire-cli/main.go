// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command respwire-cli is a minimal demonstration client for the engine:
// it dials a RESP server, sends whatever command it's given, and prints
// the decoded response.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/respwire/respwire/config"
	"github.com/respwire/respwire/internal/sigs"
	"github.com/respwire/respwire/logger"
	"github.com/respwire/respwire/loop"
	"github.com/respwire/respwire/session"
	"github.com/respwire/respwire/transport"
	"github.com/respwire/respwire/wire"
)

var (
	addr         string
	asJSON       bool
	logLevel     string
	textEncoding string
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Infof)); err != nil {
		logger.Warnf("failed to set GOMAXPROCS: %v", err)
	}

	root := &cobra.Command{
		Use:   "respwire-cli [command] [args...]",
		Short: "Send RESP commands to a server and print the decoded response",
		RunE:  run,
	}
	root.Flags().StringVar(&addr, "addr", "127.0.0.1:6379", "server address")
	root.Flags().BoolVar(&asJSON, "json", false, "print responses as JSON")
	root.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.Flags().StringVar(&textEncoding, "encoding", "utf-8", "character encoding for bulk string replies")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger.SetLoggerLevel(logLevel)

	lp := loop.New(256)
	go lp.Run()
	defer lp.Stop()

	sessCh := make(chan *session.Session, 1)
	errCh := make(chan error, 1)
	lp.Spawn(func() {
		conn, err := transport.Dial(lp, "tcp", addr)
		lp.Post(func() {
			if err != nil {
				errCh <- err
				return
			}
			sessCh <- session.New(lp, conn, config.Session{Encoding: textEncoding}, nil)
		})
	})

	select {
	case err := <-errCh:
		return fmt.Errorf("dial %s: %w", addr, err)
	case s := <-sessCh:
		if len(args) > 0 {
			return sendOne(lp, s, args)
		}
		return interactive(lp, s)
	}
}

func sendOne(lp *loop.Loop, s *session.Session, args []string) error {
	done := make(chan error, 1)
	lp.Post(func() {
		if err := s.Send(wire.NewCommandString(args[0], args[1:]...)); err != nil {
			done <- err
			return
		}
		s.Receive(func(r *wire.Response, err error) {
			if err != nil {
				done <- err
				return
			}
			printResponse(s, r)
			done <- nil
		})
	})
	return <-done
}

func interactive(lp *loop.Loop, s *session.Session) error {
	term := sigs.Terminate()
	reload := sigs.Reload()
	scanner := bufio.NewScanner(os.Stdin)
	lineCh := make(chan string)
	go func() {
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
		close(lineCh)
	}()

	for {
		select {
		case <-term:
			lp.Post(func() { s.SendEndOfStream() })
			return nil
		case <-reload:
			logger.Infof("SIGHUP received, reconnect settings will apply on next invocation")
		case line, ok := <-lineCh:
			if !ok {
				lp.Post(func() { s.SendEndOfStream() })
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			done := make(chan struct{})
			lp.Post(func() {
				if err := s.Send(wire.NewCommandString(fields[0], fields[1:]...)); err != nil {
					fmt.Fprintln(os.Stderr, err)
					close(done)
					return
				}
				s.Receive(func(r *wire.Response, err error) {
					if err != nil {
						fmt.Fprintln(os.Stderr, err)
					} else {
						printResponse(s, r)
					}
					close(done)
				})
			})
			<-done
		}
	}
}

func printResponse(s *session.Session, r *wire.Response) {
	if r == nil {
		fmt.Println("(no more responses)")
		return
	}
	if asJSON {
		b, err := json.Marshal(toJSONValue(s, *r))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Println(string(b))
		return
	}
	fmt.Println(render(s, *r))
}

func render(s *session.Session, r wire.Response) string {
	switch r.Kind {
	case wire.SimpleString:
		return r.Str
	case wire.ErrorReply:
		return "(error) " + r.Str
	case wire.Integer:
		return fmt.Sprintf("(integer) %d", r.Int)
	case wire.BulkString:
		if r.IsNil() {
			return "(nil)"
		}
		return bulkText(s, r.Bytes)
	case wire.Array:
		if r.IsNil() {
			return "(nil)"
		}
		var sb strings.Builder
		for i, item := range r.Items {
			fmt.Fprintf(&sb, "%d) %s\n", i+1, render(s, item))
		}
		return strings.TrimRight(sb.String(), "\n")
	default:
		return "(unknown)"
	}
}

func toJSONValue(s *session.Session, r wire.Response) any {
	switch r.Kind {
	case wire.SimpleString:
		return r.Str
	case wire.ErrorReply:
		return map[string]string{"error": r.Str}
	case wire.Integer:
		return r.Int
	case wire.BulkString:
		if r.IsNil() {
			return nil
		}
		return bulkText(s, r.Bytes)
	case wire.Array:
		if r.IsNil() {
			return nil
		}
		out := make([]any, len(r.Items))
		for i, item := range r.Items {
			out[i] = toJSONValue(s, item)
		}
		return out
	default:
		return nil
	}
}

// bulkText decodes a bulk string's bytes from the session's configured
// character encoding, falling back to the raw bytes if the conversion
// fails (e.g. the reply wasn't actually in that encoding).
func bulkText(s *session.Session, b []byte) string {
	text, err := s.DecodeText(b)
	if err != nil {
		return string(b)
	}
	return text
}
