package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/homeworkchat/core/conversation"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	store   conversation.Store
	backend conversation.Backend
	migrate func(command string, args ...string) error
	in      io.Reader
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                        - run a goose migration command (up, down, status...)")
	fmt.Fprintln(cli.out, "  list                                          - list stored threads (pebble store)")
	fmt.Fprintln(cli.out, "  show -mode MODE -task TASK                    - print a stored thread")
	fmt.Fprintln(cli.out, "  clear -mode MODE -task TASK [-yes]            - delete a stored thread")
	fmt.Fprintln(cli.out, "  diff -mode MODE -task TASK -conversation ID   - compare a stored thread with the backend history")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)
	case "list":
		return cli.listThreads(ctx)
	case "show":
		key, _, _, err := cli.parseThreadFlags("show", args[2:], false)
		if err != nil {
			return err
		}
		return cli.showThread(ctx, key)
	case "clear":
		key, yes, _, err := cli.parseThreadFlags("clear", args[2:], false)
		if err != nil {
			return err
		}
		if !yes {
			if err = cli.confirm(fmt.Sprintf("Delete thread %s? [y/N] ", key)); err != nil {
				return err
			}
		}
		return cli.clearThread(ctx, key)
	case "diff":
		key, _, convID, err := cli.parseThreadFlags("diff", args[2:], true)
		if err != nil {
			return err
		}
		return cli.diffThread(ctx, key, convID)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) parseThreadFlags(name string, args []string, withConversation bool) (key conversation.ThreadKey, yes bool, convID string, err error) {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	mode := cmd.String("mode", conversation.DefaultMode, "The thread's mode.")
	task := cmd.String("task", "", "The thread's task ID.")
	var yesFlag *bool
	if name == "clear" {
		yesFlag = cmd.Bool("yes", false, "Do not ask for confirmation.")
	}
	var conv *string
	if withConversation {
		conv = cmd.String("conversation", "", "The backend conversation ID.")
	}

	if err = cmd.Parse(args); err != nil {
		if err == flag.ErrHelp {
			err = errHelp
		}
		return
	}
	if strings.TrimSpace(*task) == "" {
		cmd.Usage()
		return key, false, "", errHelp
	}
	if withConversation {
		if convID = strings.TrimSpace(*conv); convID == "" {
			cmd.Usage()
			return key, false, "", errHelp
		}
	}
	if yesFlag != nil {
		yes = *yesFlag
	}
	return conversation.ResolveThreadKey(*mode, *task), yes, convID, nil
}

// confirm asks the question on the terminal; without terminal, -yes is required.
func (cli *commandLine) confirm(question string) error {
	if !isTerminalFunc(int(syscall.Stdin)) {
		return errors.New("stdin is not a terminal: pass -yes to confirm")
	}
	fmt.Fprint(cli.out, question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errAborted
}

func newCommandLine(store conversation.Store, backend conversation.Backend, migrate func(string, ...string) error) *commandLine {
	return &commandLine{
		store:   store,
		backend: backend,
		migrate: migrate,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}
