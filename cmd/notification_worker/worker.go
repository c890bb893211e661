package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-friendship/pkg/mailer"
	mailtpl "github.com/oksasatya/go-ddd-friendship/pkg/mailer/templates"
)

type outcome int

const (
	outcomeAck outcome = iota
	// outcomeDrop discards a message that can never succeed.
	outcomeDrop
	// outcomeRetry schedules another attempt after a delivery failure.
	outcomeRetry
)

const sendTimeout = 15 * time.Second

type worker struct {
	sender mailer.Sender
	logger *logrus.Logger
}

// handle decodes one EmailJob, renders its template if it names one and
// sends it.
func (w *worker) handle(ctx context.Context, body []byte) outcome {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.WithError(err).Warn("bad message")
		return outcomeDrop
	}
	if job.To == "" {
		w.logger.Warn("message without recipient")
		return outcomeDrop
	}
	log := w.logger.WithFields(logrus.Fields{"to": job.To, "template": job.Template})

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		s, t, h, err := mailtpl.Render(job.Template, job.Data)
		if err != nil {
			log.WithError(err).Warn("render failed")
			return outcomeDrop
		}
		subject, text, html = s, t, h
	}
	if subject == "" || (text == "" && html == "") {
		log.Warn("message without content")
		return outcomeDrop
	}

	c, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := w.sender.Send(c, job.To, subject, text, html); err != nil {
		log.WithError(err).Error("send failed")
		return outcomeRetry
	}
	log.Info("notification sent")
	return outcomeAck
}
