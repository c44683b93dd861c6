package inmemdb

import (
	"sync"

	"github.com/trezcool/homeworkchat/core/conversation"
	"github.com/trezcool/homeworkchat/core/tutor"
)

type (
	DB struct {
		thread       *threadTable
		conversation *conversationTable
		upload       *uploadTable
	}

	threadTable struct {
		sync.RWMutex
		table map[conversation.ThreadKey][]conversation.Message
	}

	conversationTable struct {
		sync.RWMutex
		table map[string]*tutor.Conversation
	}

	uploadTable struct {
		sync.RWMutex
		table map[string]*tutor.Upload
	}
)

func Open() *DB {
	return &DB{
		thread:       &threadTable{table: make(map[conversation.ThreadKey][]conversation.Message)},
		conversation: &conversationTable{table: make(map[string]*tutor.Conversation)},
		upload:       &uploadTable{table: make(map[string]*tutor.Upload)},
	}
}

func cloneMessages(msgs []conversation.Message) []conversation.Message {
	if msgs == nil {
		return nil
	}
	out := make([]conversation.Message, len(msgs))
	for i, m := range msgs {
		if m.Table != nil {
			tbl := *m.Table
			tbl.QA = append([]conversation.QA(nil), m.Table.QA...)
			m.Table = &tbl
		}
		out[i] = m
	}
	return out
}
