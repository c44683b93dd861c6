package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/trezcool/homeworkchat/apps"
	"github.com/trezcool/homeworkchat/core"
	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/services/backend"
	logsvc "github.com/trezcool/homeworkchat/services/logger"
	notifysvc "github.com/trezcool/homeworkchat/services/notify"
)

// programRef forwards engine callbacks to the running program; they arrive from tea.Cmd goroutines.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r.p != nil {
		r.p.Send(msg)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := core.NewConfig()
	if err != nil {
		return err
	}
	validate, _ := core.NewValidator()
	if err = conf.Validate(validate); err != nil {
		return err
	}
	if conf.Chat.UserID == "" {
		return fmt.Errorf("%s_CHAT_USERID is required", conf.Env)
	}

	// the terminal belongs to the UI: logs go to a file
	logPath := filepath.Join(os.TempDir(), "homeworkchat.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer logFile.Close()
	level := logsvc.LevelInfo
	if conf.Debug {
		level = logsvc.LevelDebug
	}
	logger := logsvc.NewStdLogger(log.New(logFile, "CHAT : ", log.LstdFlags|log.Lmicroseconds), level)

	store, _, closer, err := apps.OpenThreadStore(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("closing thread store", err)
		}
	}()

	ref := new(programRef)
	logNotifier := notifysvc.NewLoggerNotifier(logger)
	notifier := conversation.NotifierFunc(func(toast conversation.Toast) {
		logNotifier.Notify(toast)
		ref.send(toastMsg(toast))
	})
	var seed []conversation.Message
	if conf.Chat.Greeting != "" {
		seed = []conversation.Message{{From: conversation.RoleAgent, Kind: conversation.KindText, Content: conf.Chat.Greeting}}
	}

	svc, err := conversation.NewService(conversation.Options{
		UserID:   conf.Chat.UserID,
		Mode:     conf.Chat.Mode,
		TaskID:   conf.Chat.TaskID,
		ScanID:   conf.Chat.ScanID,
		Store:    store,
		Backend:  backend.NewClient(conf.Backend.BaseURL, conf.Backend.Token, conf.Backend.Timeout),
		Notifier: notifier,
		Logger:   logger,
		Validate: validate,
		Seed:     seed,
		OnChange: func(msgs []conversation.Message) { ref.send(viewMsg(msgs)) },
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref.p = tea.NewProgram(newModel(ctx, svc), tea.WithAltScreen(), tea.WithContext(ctx))
	logger.Info(fmt.Sprintf("chat started : thread %s, store %s", svc.Key(), conf.Store.Engine))
	_, err = ref.p.Run()
	return err
}
