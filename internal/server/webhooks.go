package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbaffoe/momoguard/internal/commands"
	"github.com/kbaffoe/momoguard/internal/engine"
	"github.com/kbaffoe/momoguard/internal/logging"
	"github.com/kbaffoe/momoguard/internal/messenger"
	"github.com/kbaffoe/momoguard/internal/metrics"
	"github.com/kbaffoe/momoguard/internal/validation"
)

// telegramUpdate is the subset of the Telegram Bot API update payload we
// consume. Everything else in the update is ignored.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		Date      int64 `json:"date"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// telegramWebhook receives Telegram bot updates. Always answers 200 so
// Telegram does not retry messages we chose to drop.
func (s *Server) telegramWebhook(c *gin.Context) {
	if s.cfg.TelegramWebhookSecret != "" {
		got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if got != s.cfg.TelegramWebhookSecret {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid webhook secret",
			})
			return
		}
	}

	var update telegramUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Malformed update payload",
		})
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	if !validation.IsValidChatID(chatID) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	observedAt := time.Unix(update.Message.Date, 0).UTC()
	s.dispatchMessage(c, "telegram", chatID, update.Message.Text, observedAt)
}

// whatsappWebhook receives Twilio inbound message callbacks
// (application/x-www-form-urlencoded).
func (s *Server) whatsappWebhook(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")

	// Twilio sends "whatsapp:+233241234567"
	phone := strings.TrimPrefix(from, "whatsapp:")

	if errs := validation.Validate(
		validation.Required("From", from),
		validation.Required("Body", body),
		validation.MaxLength("Body", body, validation.MaxMessageLength),
		validation.ValidPhone("From", phone),
	); len(errs) > 0 {
		// Twilio retries on non-2xx; drop invalid callbacks quietly.
		logging.L(c.Request.Context()).Debug("invalid whatsapp callback", "error", errs.Error())
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// The bare phone number is the channel ref; the sender adds the
	// whatsapp: prefix back on the way out.
	s.dispatchMessage(c, "whatsapp", phone, body, time.Now().UTC())
}

// dispatchMessage routes one inbound message: bot commands go to the
// interpreter, everything else to the risk engine.
func (s *Server) dispatchMessage(c *gin.Context, platform, channelRef, text string, observedAt time.Time) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	text = validation.SanitizeString(text, validation.MaxMessageLength)
	if text == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if commands.IsCommand(text) {
		reply, err := s.interp.Run(ctx, platform, channelRef, text)
		if err != nil {
			logger.Error("command failed", "platform", platform, "error", err)
			metrics.MessagesTotal.WithLabelValues(platform, "error").Inc()
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		if err := s.msgr.SendTo(ctx, platform, channelRef, reply); err != nil {
			logger.Warn("command reply delivery failed", "platform", platform, "error", err)
		}
		metrics.MessagesTotal.WithLabelValues(platform, "command").Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	outcome, err := s.engine.HandleMessage(ctx, platform, channelRef, text, observedAt)
	if err != nil {
		logger.Error("message handling failed", "platform", platform, "error", err)
		metrics.MessagesTotal.WithLabelValues(platform, "error").Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	metrics.MessagesTotal.WithLabelValues(platform, string(outcome.Kind)).Inc()

	switch outcome.Kind {
	case engine.OutcomeRejected:
		if err := s.msgr.SendTo(ctx, platform, channelRef, messenger.FormatParseFailure()); err != nil {
			logger.Warn("parse failure reply delivery failed", "platform", platform, "error", err)
		}
	case engine.OutcomeNoSession:
		// A yes/no/block reply with no open confirmation falls through to
		// the interpreter so the user gets the unknown-command help instead
		// of silence.
		reply, err := s.interp.Run(ctx, platform, channelRef, text)
		if err != nil {
			logger.Error("command failed", "platform", platform, "error", err)
			break
		}
		if err := s.msgr.SendTo(ctx, platform, channelRef, reply); err != nil {
			logger.Warn("command reply delivery failed", "platform", platform, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
