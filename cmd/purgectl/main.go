// Command purgectl inspects cache storage trees offline. It is meant for
// debugging, e.g. to find out which key a file belongs to, or where a
// key would be stored.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/walk"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func logf(format string, v ...interface{}) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, format, v...)
}

func fatalf(format string, v ...interface{}) {
	logf(format, v...)
	os.Exit(1)
}

func main() {
	// prepend help command here, to avoid initialization cycles
	commands = append([]command{{
		name: "help",
		help: "print this help message and exit",
		run: func(_ afero.Fs, _ io.Writer, args []string) error {
			logf("Usage:\n\t%s COMMAND [OPTIONS]", os.Args[0])
			logf("\nCommands:")
			for _, cmd := range commands {
				logf("\t%-8s %s", cmd.name, cmd.help)
			}
			if len(args) > 0 && args[0] != "help" {
				logf("")
				runCmd(args[0], []string{"-h"})
			} else {
				logf("\nSee '%s help COMMAND' for details on acceptable options.", os.Args[0])
			}
			return nil
		},
	}}, commands...)

	if len(os.Args) <= 1 {
		runCmd("help", nil)
	}
	if arg := os.Args[1]; arg == "-h" || arg == "--help" {
		runCmd("help", nil)
	} else {
		runCmd(arg, os.Args[2:])
	}
}

func runCmd(name string, args []string) {
	for _, cmd := range commands {
		if cmd.name == name {
			if err := cmd.run(afero.NewOsFs(), os.Stdout, args); err != nil {
				fatalf("%s: %v", name, err)
			}
			os.Exit(0)
		}
	}
	logf("error: command %q not found", name)
	os.Exit(2)
}

type command struct {
	name string
	run  func(fsys afero.Fs, out io.Writer, args []string) error
	help string
}

var commands = []command{{
	name: "path",
	help: "print the storage path of a cache key",
	run:  cmdPath,
}, {
	name: "inspect",
	help: "print header and key of cache files",
	run:  cmdInspect,
}, {
	name: "keys",
	help: "list cache files and their keys, optionally filtered by prefix",
	run:  cmdKeys,
}}

var errUsage = errors.New("invalid arguments, see help")

func cmdPath(_ afero.Fs, out io.Writer, args []string) error {
	flags := pflag.NewFlagSet("path", pflag.ContinueOnError)
	root := flags.StringP("root", "r", ".", "cache zone `directory`")
	levels := flags.StringP("levels", "l", "", "directory `levels`, e.g. 1:2")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errUsage
	}

	lv, err := cache.ParseLevels(*levels)
	if err != nil {
		return err
	}
	for _, key := range flags.Args() {
		fmt.Fprintln(out, lv.Path(*root, cache.HashKey(key)))
	}
	return nil
}

func cmdInspect(fsys afero.Fs, out io.Writer, args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errUsage
	}

	for i, path := range flags.Args() {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := inspect(fsys, out, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func inspect(fsys afero.Fs, out io.Writer, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := cache.ReadHeader(f)
	if err != nil {
		return err
	}
	key, err := cache.ReadKey(f, h)
	if err != nil {
		return err
	}

	const l = "%-14s %s\n"
	fmt.Fprintf(out, l, "file", path)
	fmt.Fprintf(out, l, "key", key)
	fmt.Fprintf(out, l, "hash", cache.HashKey(key))
	fmt.Fprintf(out, l, "valid until", formatTime(h.ValidUntil()))
	fmt.Fprintf(out, l, "date", formatUnix(h.Date))
	fmt.Fprintf(out, l, "last modified", formatUnix(h.LastModified))
	if h.ETagLen > 0 {
		fmt.Fprintf(out, l, "etag", h.ETag[:h.ETagLen])
	}
	fmt.Fprintf(out, "%-14s %d\n", "body offset", h.BodyStart)
	return nil
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return formatTime(time.Unix(sec, 0))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func cmdKeys(fsys afero.Fs, out io.Writer, args []string) error {
	flags := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	prefix := flags.StringP("prefix", "p", "", "only list keys starting with `prefix` (case-insensitive)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errUsage
	}

	want := []byte(*prefix)
	_, err := walk.Walk(fsys, flags.Arg(0), zap.NewNop(), func(path string, _ fs.FileInfo) error {
		f, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		h, err := cache.ReadHeader(f)
		if err != nil {
			logf("%s: %v", path, err)
			return nil
		}
		key, err := cache.ReadKey(f, h)
		if err != nil {
			logf("%s: %v", path, err)
			return nil
		}
		if len(want) > len(key) || !bytes.EqualFold([]byte(key[:len(want)]), want) {
			return nil
		}
		fmt.Fprintf(out, "%s\t%s\n", path, key)
		return nil
	})
	return err
}
