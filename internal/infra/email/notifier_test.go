package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyFailureSendsMessage(t *testing.T) {
	n := NewSMTPNotifier("mailhog", 1025, "noreply@vdsm.local", zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, n.NotifyFailure(context.Background(), "alice@example.com", "job-1", "video-9", "no scenes found"))
	assert.Equal(t, "mailhog:1025", gotAddr)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: VDSM - Summary Generation Failed [Job job-1]")
	assert.Contains(t, gotMsg, "Video: video-9")
	assert.Contains(t, gotMsg, "Error: no scenes found")
}

func TestNotifyFailureReturnsSendError(t *testing.T) {
	n := NewSMTPNotifier("mailhog", 1025, "noreply@vdsm.local", zap.NewNop())
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	assert.Error(t, n.NotifyFailure(context.Background(), "alice@example.com", "job-1", "video-9", "x"))
}
