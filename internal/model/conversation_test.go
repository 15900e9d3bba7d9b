package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCitedNamesDeduplicatesInOrder(t *testing.T) {
	a := &RAGAnswer{Sources: []Source{
		{Title: "IPC Section 420"},
		{Document: "lease.pdf"},
		{Title: "IPC Section 420"},
		{Source: "Gazette of India"},
		{},
	}}
	assert.Equal(t, []string{"IPC Section 420", "lease.pdf", "Gazette of India"}, a.CitedNames())
	assert.Nil(t, (&RAGAnswer{}).CitedNames())
}
