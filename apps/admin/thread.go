package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/homeworkchat/apps"
	"github.com/trezcool/homeworkchat/core/conversation"
)

type keyLister interface {
	Keys(ctx context.Context) ([]conversation.ThreadKey, error)
}

func (cli *commandLine) listThreads(ctx context.Context) error {
	lister, ok := cli.store.(keyLister)
	if !ok {
		return apps.NewArgumentError("listing threads needs the pebble store")
	}
	keys, err := lister.Keys(ctx)
	if err != nil {
		return errors.Wrap(err, "listing threads")
	}
	for _, key := range keys {
		fmt.Fprintln(cli.out, key)
	}
	return nil
}

func (cli *commandLine) showThread(ctx context.Context, key conversation.ThreadKey) error {
	msgs, ok, err := cli.store.Get(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "reading thread %s", key)
	}
	if !ok {
		fmt.Fprintf(cli.out, "thread %s is empty\n", key)
		return nil
	}
	for _, line := range renderLines(msgs) {
		fmt.Fprint(cli.out, line)
	}
	return nil
}

func (cli *commandLine) clearThread(ctx context.Context, key conversation.ThreadKey) error {
	if err := cli.store.Clear(ctx, key); err != nil {
		return errors.Wrapf(err, "clearing thread %s", key)
	}
	fmt.Fprintf(cli.out, "thread %s cleared\n", key)
	return nil
}

func (cli *commandLine) diffThread(ctx context.Context, key conversation.ThreadKey, convID string) error {
	stored, _, err := cli.store.Get(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "reading thread %s", key)
	}
	history, err := cli.backend.FetchConversationHistory(ctx, convID)
	if err != nil {
		return errors.Wrapf(err, "fetching conversation %s", convID)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        renderLines(stored),
		B:        renderLines(history),
		FromFile: "store " + key.String(),
		ToFile:   "backend " + convID,
		Context:  3,
	})
	if err != nil {
		return errors.Wrap(err, "diffing thread")
	}
	if diff == "" {
		fmt.Fprintln(cli.out, "no differences")
		return nil
	}
	fmt.Fprint(cli.out, diff)
	return nil
}

// renderLines renders one newline terminated line per message, ignoring ids.
func renderLines(msgs []conversation.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.ReplaceAll(m.Text(), "\n", `\n`)
		if m.Kind == conversation.KindTable && m.Table != nil {
			text = fmt.Sprintf("%s (%d QA)", text, len(m.Table.QA))
		}
		lines = append(lines, fmt.Sprintf("%s/%s: %s\n", m.From, m.Kind, text))
	}
	return lines
}
