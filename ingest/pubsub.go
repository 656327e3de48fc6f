package ingest

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/utils"
)

type InboxNudgePayload struct {
	Hash string `json:"hash"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func nudgeTopicName() string {
	if v := strings.TrimSpace(os.Getenv("INBOX_NUDGE_TOPIC")); v != "" {
		return v
	}
	return "webhooks-inbox"
}

// PublishInboxNudge tells the drain worker that a fresh inbox entry exists.
// Best effort: with no Pub/Sub project configured, or on publish failure,
// the entry simply waits for the next scheduled drain.
func PublishInboxNudge(ctx context.Context, hash string) {
	if !envBoolDefault("ENABLE_INBOX_NUDGE", true) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	topic := nudgeTopicName()
	if envBoolDefault("INBOX_NUDGE_CREATE_TOPIC", false) {
		if client, err := config.GetPubSubClient(ctx); err == nil {
			if _, err := config.CreateTopicIfNotExists(client, topic); err != nil {
				config.GetLogger().Warnf("inbox nudge topic create failed: %v", err)
			}
		}
	}

	err := config.PublishJSON(ctx, topic, InboxNudgePayload{Hash: hash})
	if err != nil {
		config.GetLogger().WithField("hash", hash).Warnf("inbox nudge publish failed: %v", err)
	}
}

// PubSubPushHandler is the push-subscription endpoint. Malformed envelopes
// are acknowledged with 204 so the subscription does not redeliver garbage;
// a failed drain returns 500 so Pub/Sub retries later.
func PubSubPushHandler(processor *Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_INBOX_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := utils.UnmarshalFromJSON(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		result, err := processor.Drain(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "ingest", "PubSubPushHandler", "drain inbox", envelope.Message.MessageId, err)
			c.Status(500)
			return
		}
		c.JSON(200, result)
	}
}

func envBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
