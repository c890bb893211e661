package application

import (
	"context"
	"errors"
	"expvar"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
	"github.com/oksasatya/go-ddd-friendship/pkg/apperror"
)

var (
	ErrInvalidRecipient      = apperror.New(apperror.CodeValidation, "Invalid to_user id.")
	ErrSelfRequest           = apperror.New(apperror.CodeValidation, "You cannot send a friend request to yourself.")
	ErrDuplicateRequest      = apperror.New(apperror.CodeValidation, "You've already sent a friend request to this user.")
	ErrReverseRequestExists  = apperror.New(apperror.CodeValidation, "Do not send a friend request to the same user again.")
	ErrFriendRequestNotFound = apperror.New(apperror.CodeNotFound, "Friend request not found.")
	ErrPersistence           = apperror.New(apperror.CodePersistence, "An unexpected error occurred.")
)

// StatsName is the expvar map holding friendship outcome counters.
const StatsName = "friendship"

// friendshipStats is published under /debug/vars.
var friendshipStats = expvar.NewMap(StatsName)

func init() {
	for _, k := range []string{
		"requests_sent", "requests_accepted", "requests_rejected", "requests_cancelled",
		"validation_failures", "persistence_failures",
	} {
		friendshipStats.Add(k, 0)
	}
}

// Notifier is told about friendship events after they commit. Delivery is
// best effort.
type Notifier interface {
	FriendRequestSent(ctx context.Context, requester, recipient *entity.User, f *entity.Friendship) error
	FriendRequestAccepted(ctx context.Context, requester, recipient *entity.User, f *entity.Friendship) error
}

type FriendshipService struct {
	Users       repo.UserRepository
	Friendships repo.FriendshipRepository
	Notifier    Notifier
	Logger      *logrus.Logger
}

func NewFriendshipService(users repo.UserRepository, friendships repo.FriendshipRepository, notifier Notifier, logger *logrus.Logger) *FriendshipService {
	return &FriendshipService{Users: users, Friendships: friendships, Notifier: notifier, Logger: logger}
}

func (s *FriendshipService) log(fields logrus.Fields) *logrus.Entry {
	l := s.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithFields(fields)
}

// persistenceFailure logs the cause at error level and hides it from the
// caller behind ErrPersistence.
func (s *FriendshipService) persistenceFailure(log *logrus.Entry, op string, err error) error {
	friendshipStats.Add("persistence_failures", 1)
	log.WithError(err).Error(op + " failed")
	return apperror.Wrap(err, ErrPersistence.Code, ErrPersistence.Message)
}

func isExpected(err error) bool {
	for _, e := range []error{ErrSelfRequest, ErrDuplicateRequest, ErrReverseRequestExists, ErrInvalidRecipient, ErrFriendRequestNotFound} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// SendFriendRequest creates a pending edge requester→recipient. The
// recipient must exist; then the first failing check wins: self request,
// same direction already present, opposite direction already present.
func (s *FriendshipService) SendFriendRequest(ctx context.Context, requesterID, recipientID int64) (*entity.Friendship, error) {
	log := s.log(logrus.Fields{"from_user_id": requesterID, "to_user_id": recipientID})

	recipient, err := s.Users.GetByID(ctx, recipientID)
	if errors.Is(err, repo.ErrNotFound) {
		friendshipStats.Add("validation_failures", 1)
		log.Warn("friend request to unknown user")
		return nil, ErrInvalidRecipient
	}
	if err != nil {
		return nil, s.persistenceFailure(log, "load recipient", err)
	}

	var created *entity.Friendship
	err = s.Friendships.WithinTx(ctx, func(tx repo.FriendshipRepository) error {
		if requesterID == recipientID {
			return ErrSelfRequest
		}
		if _, err := tx.FindByPair(ctx, requesterID, recipientID); err == nil {
			return ErrDuplicateRequest
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if _, err := tx.FindByPair(ctx, recipientID, requesterID); err == nil {
			return ErrReverseRequestExists
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		f := &entity.Friendship{FromUserID: requesterID, ToUserID: recipientID}
		if err := tx.InsertIfAbsent(ctx, f); err != nil {
			return err
		}
		created = f
		return nil
	})
	switch {
	case err == nil:
	case isExpected(err):
		friendshipStats.Add("validation_failures", 1)
		log.WithField("reason", apperror.MessageOf(err)).Warn("friend request refused")
		return nil, err
	default:
		// ErrConflict lands here too: another request for the pair won the race.
		return nil, s.persistenceFailure(log, "send friend request", err)
	}

	friendshipStats.Add("requests_sent", 1)
	log.WithField("friendship_id", created.ID).Info("friend request sent")

	if s.Notifier != nil {
		if requester, err := s.Users.GetByID(ctx, requesterID); err != nil {
			log.WithError(err).Warn("load requester for notification")
		} else if err := s.Notifier.FriendRequestSent(ctx, requester, recipient, created); err != nil {
			log.WithError(err).Warn("publish friend request notification")
		}
	}
	return created, nil
}

// AcceptFriendRequest accepts the pending edge requestID addressed to
// recipientID. Wrong id, wrong recipient and an already accepted or
// removed edge are all reported the same way.
func (s *FriendshipService) AcceptFriendRequest(ctx context.Context, recipientID, requestID int64) (*entity.Friendship, error) {
	log := s.log(logrus.Fields{"to_user_id": recipientID, "friendship_id": requestID})

	var accepted *entity.Friendship
	err := s.Friendships.WithinTx(ctx, func(tx repo.FriendshipRepository) error {
		f, err := tx.UpdateAccepted(ctx, requestID, recipientID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFriendRequestNotFound
		}
		accepted = f
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrFriendRequestNotFound):
		log.Warn("accept: no pending request")
		return nil, err
	default:
		return nil, s.persistenceFailure(log, "accept friend request", err)
	}

	friendshipStats.Add("requests_accepted", 1)
	log.WithField("from_user_id", accepted.FromUserID).Info("friend request accepted")

	if s.Notifier != nil {
		requester, rErr := s.Users.GetByID(ctx, accepted.FromUserID)
		recipient, pErr := s.Users.GetByID(ctx, recipientID)
		if err := errors.Join(rErr, pErr); err != nil {
			log.WithError(err).Warn("load users for notification")
		} else if err := s.Notifier.FriendRequestAccepted(ctx, requester, recipient, accepted); err != nil {
			log.WithError(err).Warn("publish acceptance notification")
		}
	}
	return accepted, nil
}

// RejectFriendRequest removes the pending edge fromUserID→recipientID.
// Accepted friendships cannot be rejected.
func (s *FriendshipService) RejectFriendRequest(ctx context.Context, recipientID, fromUserID int64) error {
	log := s.log(logrus.Fields{"from_user_id": fromUserID, "to_user_id": recipientID})
	if err := s.deletePending(ctx, fromUserID, recipientID); err != nil {
		if errors.Is(err, ErrFriendRequestNotFound) {
			log.Warn("reject: no pending request")
			return err
		}
		return s.persistenceFailure(log, "reject friend request", err)
	}
	friendshipStats.Add("requests_rejected", 1)
	log.Info("friend request rejected")
	return nil
}

// CancelFriendRequest lets the requester withdraw a pending edge
// requesterID→toUserID.
func (s *FriendshipService) CancelFriendRequest(ctx context.Context, requesterID, toUserID int64) error {
	log := s.log(logrus.Fields{"from_user_id": requesterID, "to_user_id": toUserID})
	if err := s.deletePending(ctx, requesterID, toUserID); err != nil {
		if errors.Is(err, ErrFriendRequestNotFound) {
			log.Warn("cancel: no pending request")
			return err
		}
		return s.persistenceFailure(log, "cancel friend request", err)
	}
	friendshipStats.Add("requests_cancelled", 1)
	log.Info("friend request cancelled")
	return nil
}

func (s *FriendshipService) deletePending(ctx context.Context, fromUserID, toUserID int64) error {
	return s.Friendships.WithinTx(ctx, func(tx repo.FriendshipRepository) error {
		err := tx.DeleteByPair(ctx, fromUserID, toUserID, true)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFriendRequestNotFound
		}
		return err
	})
}

// ListFriends returns accepted edges on either side of userID.
func (s *FriendshipService) ListFriends(ctx context.Context, userID int64) ([]entity.Friendship, error) {
	return s.list(ctx, "list friends", repo.FriendshipFilter{EitherUserID: userID, Accepted: repo.Bool(true)})
}

// ListPending returns pending edges addressed to userID.
func (s *FriendshipService) ListPending(ctx context.Context, userID int64) ([]entity.Friendship, error) {
	return s.list(ctx, "list pending requests", repo.FriendshipFilter{ToUserID: userID, Accepted: repo.Bool(false)})
}

// ListSent returns pending edges sent by userID.
func (s *FriendshipService) ListSent(ctx context.Context, userID int64) ([]entity.Friendship, error) {
	return s.list(ctx, "list sent requests", repo.FriendshipFilter{FromUserID: userID, Accepted: repo.Bool(false)})
}

func (s *FriendshipService) list(ctx context.Context, op string, filter repo.FriendshipFilter) ([]entity.Friendship, error) {
	out, err := s.Friendships.ListWhere(ctx, filter)
	if err != nil {
		return nil, s.persistenceFailure(s.log(logrus.Fields{
			"from_user_id":   filter.FromUserID,
			"to_user_id":     filter.ToUserID,
			"either_user_id": filter.EitherUserID,
		}), op, err)
	}
	return out, nil
}
