// Package notify turns friendship events into email jobs on the
// notification queue consumed by cmd/notification_worker.
package notify

import (
	"context"
	"time"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	"github.com/oksasatya/go-ddd-friendship/pkg/mailer"
	"github.com/oksasatya/go-ddd-friendship/pkg/mailer/templates"
)

// Publisher puts a JSON body on the queue. helpers.RabbitPublisher
// implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

type QueueNotifier struct {
	pub        Publisher
	appName    string
	pendingURL string
}

func NewQueueNotifier(pub Publisher, appName, pendingURL string) *QueueNotifier {
	return &QueueNotifier{pub: pub, appName: appName, pendingURL: pendingURL}
}

// FriendRequestSent tells the recipient about a new pending request.
func (n *QueueNotifier) FriendRequestSent(ctx context.Context, requester, recipient *entity.User, f *entity.Friendship) error {
	data := templates.NewFriendshipData(n.appName,
		recipient.Name, recipient.Email,
		requester.Name, requester.Email,
		templates.WithTime(f.CreatedAt),
		templates.WithActionURL(n.pendingURL),
		templates.WithRequestID(f.ID),
	)
	return n.publish(ctx, recipient.Email, templates.FriendRequestReceived, data)
}

// FriendRequestAccepted tells the requester that the recipient accepted.
func (n *QueueNotifier) FriendRequestAccepted(ctx context.Context, requester, recipient *entity.User, f *entity.Friendship) error {
	data := templates.NewFriendshipData(n.appName,
		requester.Name, requester.Email,
		recipient.Name, recipient.Email,
		templates.WithTime(time.Now()),
		templates.WithRequestID(f.ID),
	)
	return n.publish(ctx, requester.Email, templates.FriendRequestAccepted, data)
}

func (n *QueueNotifier) publish(ctx context.Context, to, tmpl string, data templates.EmailData) error {
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return n.pub.PublishJSON(c, mailer.EmailJob{
		To:       to,
		Template: tmpl,
		Data:     templates.ToMap(data),
	})
}
