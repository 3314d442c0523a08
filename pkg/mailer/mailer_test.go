package mailer

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBuildsMessage(t *testing.T) {
	m := NewSMTP(Config{Host: "smtp.example.com", Port: 2525, FromAddress: "noreply@example.com", FromName: "Inquiro"}, nil)
	var gotAddr, gotFrom string
	var gotTo []string
	var gotAuth smtp.Auth
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	require.NoError(t, m.Send(Message{To: "owner@example.com", Subject: "New response", BodyHTML: "<p>hi</p>"}))

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Nil(t, gotAuth)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)
	body := string(gotMsg)
	assert.Contains(t, body, "From: Inquiro <noreply@example.com>\r\n")
	assert.Contains(t, body, "Subject: New response\r\n")
	assert.True(t, strings.HasSuffix(body, "\r\n\r\n<p>hi</p>"))
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	m := NewSMTP(Config{Host: "h", Port: 25}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return nil }
	assert.Error(t, m.Send(Message{To: "a@b.c\r\nBcc: x@y.z"}))
}

func TestSendWrapsTransportError(t *testing.T) {
	m := NewSMTP(Config{Host: "h", Port: 25, User: "u", Pass: "p"}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 busy") }
	err := m.Send(Message{To: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421 busy")
}
