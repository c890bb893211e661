package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
	"github.com/oksasatya/go-ddd-friendship/internal/infrastructure/memory"
	"github.com/oksasatya/go-ddd-friendship/pkg/apperror"
)

type fixture struct {
	store *memory.Store
	svc   *FriendshipService
	hook  *test.Hook
	alice *entity.User
	bob   *entity.User
	carol *entity.User
}

func newUser(t *testing.T, users repo.UserRepository, email, name string) *entity.User {
	t.Helper()
	u := &entity.User{Email: email, Name: name}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	logger, hook := test.NewNullLogger()
	users := store.Users()

	return &fixture{
		store: store,
		svc:   NewFriendshipService(users, store.Friendships(), nil, logger),
		hook:  hook,
		alice: newUser(t, users, "alice@example.com", "Alice"),
		bob:   newUser(t, users, "bob@example.com", "Bob"),
		carol: newUser(t, users, "carol@example.com", "Carol"),
	}
}

func (f *fixture) edges(t *testing.T) []entity.Friendship {
	t.Helper()
	all, err := f.store.Friendships().ListWhere(context.Background(), repo.FriendshipFilter{})
	require.NoError(t, err)
	return all
}

func TestSendFriendRequestOnceThenDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, got.FromUserID)
	assert.Equal(t, f.bob.ID, got.ToUserID)
	assert.Equal(t, entity.StatePending, got.State())
	assert.NotZero(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, logrus.InfoLevel, f.hook.LastEntry().Level)

	_, err = f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, "You've already sent a friend request to this user.", apperror.MessageOf(err))
	assert.Equal(t, logrus.WarnLevel, f.hook.LastEntry().Level)
	assert.Len(t, f.edges(t), 1)
}

func TestSendFriendRequestToSelf(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendFriendRequest(context.Background(), f.alice.ID, f.alice.ID)
	assert.ErrorIs(t, err, ErrSelfRequest)
	assert.Equal(t, 400, apperror.HTTPStatus(err))
	assert.Empty(t, f.edges(t))
}

func TestSendFriendRequestReverseExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.svc.SendFriendRequest(ctx, f.bob.ID, f.alice.ID)
	assert.ErrorIs(t, err, ErrReverseRequestExists)
	assert.Len(t, f.edges(t), 1)
}

func TestSendFriendRequestReverseAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)

	_, err = f.svc.SendFriendRequest(ctx, f.bob.ID, f.alice.ID)
	assert.ErrorIs(t, err, ErrReverseRequestExists)
}

func TestSendFriendRequestUnknownRecipient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendFriendRequest(context.Background(), f.alice.ID, 999)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Equal(t, 400, apperror.HTTPStatus(err))
	assert.Empty(t, f.edges(t))
}

func TestAcceptMakesFriendsOnBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.alice.ID, pending[0].FromUserID)

	sentList, err := f.svc.ListSent(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, sentList, 1)

	accepted, err := f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateAccepted, accepted.State())

	for _, u := range []*entity.User{f.alice, f.bob} {
		friends, err := f.svc.ListFriends(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, friends, 1)
		assert.Equal(t, sent.ID, friends[0].ID)
	}
	friends, err := f.svc.ListFriends(ctx, f.carol.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)

	pending, err = f.svc.ListPending(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcceptRequiresPendingEdgeAddressedToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.svc.AcceptFriendRequest(ctx, f.alice.ID, sent.ID)
	assert.ErrorIs(t, err, ErrFriendRequestNotFound, "requester cannot accept")

	_, err = f.svc.AcceptFriendRequest(ctx, f.carol.ID, sent.ID)
	assert.ErrorIs(t, err, ErrFriendRequestNotFound, "third party cannot accept")

	_, err = f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID+100)
	assert.ErrorIs(t, err, ErrFriendRequestNotFound)
	assert.Equal(t, 404, apperror.HTTPStatus(err))
}

func TestAcceptTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)

	_, err = f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID)
	assert.ErrorIs(t, err, ErrFriendRequestNotFound)
}

func TestRejectThenResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RejectFriendRequest(ctx, f.bob.ID, f.alice.ID))
	assert.Empty(t, f.edges(t))

	assert.ErrorIs(t, f.svc.RejectFriendRequest(ctx, f.bob.ID, f.alice.ID), ErrFriendRequestNotFound)

	_, err = f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	assert.NoError(t, err)
}

func TestRejectLeavesAcceptedFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.RejectFriendRequest(ctx, f.bob.ID, f.alice.ID), ErrFriendRequestNotFound)
	assert.Len(t, f.edges(t), 1)
}

func TestCancelByRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelFriendRequest(ctx, f.bob.ID, f.alice.ID), ErrFriendRequestNotFound,
		"recipient cannot cancel in the requester's place")
	require.NoError(t, f.svc.CancelFriendRequest(ctx, f.alice.ID, f.bob.ID))
	assert.Empty(t, f.edges(t))
}

// racingRepository simulates a concurrent request inserting the same pair
// between the existence checks and the insert.
type racingRepository struct {
	repo.FriendshipRepository
}

func (r racingRepository) WithinTx(ctx context.Context, fn func(tx repo.FriendshipRepository) error) error {
	return r.FriendshipRepository.WithinTx(ctx, func(tx repo.FriendshipRepository) error {
		return fn(racingRepository{tx})
	})
}

func (racingRepository) InsertIfAbsent(context.Context, *entity.Friendship) error {
	return repo.ErrConflict
}

func TestSendFriendRequestRaceIsPersistenceError(t *testing.T) {
	f := newFixture(t)
	f.svc.Friendships = racingRepository{f.store.Friendships()}

	_, err := f.svc.SendFriendRequest(context.Background(), f.alice.ID, f.bob.ID)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, repo.ErrConflict, "cause is kept for logging")
	assert.Equal(t, 500, apperror.HTTPStatus(err))
	assert.Equal(t, "An unexpected error occurred.", apperror.MessageOf(err))
	assert.Equal(t, logrus.ErrorLevel, f.hook.LastEntry().Level)
	assert.Empty(t, f.edges(t))
}

type failingLister struct {
	repo.FriendshipRepository
}

func (failingLister) ListWhere(context.Context, repo.FriendshipFilter) ([]entity.Friendship, error) {
	return nil, errors.New("connection reset")
}

func TestListStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.Friendships = failingLister{f.store.Friendships()}

	_, err := f.svc.ListFriends(context.Background(), f.alice.ID)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotContains(t, apperror.MessageOf(err), "connection reset")
}

func TestConcurrentOppositeRequestsCreateOneEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]int64{{f.alice.ID, f.bob.ID}, {f.bob.ID, f.alice.ID}} {
		wg.Add(1)
		go func(i int, from, to int64) {
			defer wg.Done()
			_, errs[i] = f.svc.SendFriendRequest(ctx, from, to)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, ErrReverseRequestExists)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, f.edges(t), 1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []int64
	accepted []int64
	err      error
}

func (n *recordingNotifier) FriendRequestSent(_ context.Context, requester, recipient *entity.User, f *entity.Friendship) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recipient.ID)
	return n.err
}

func (n *recordingNotifier) FriendRequestAccepted(_ context.Context, requester, recipient *entity.User, f *entity.Friendship) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, requester.ID)
	return n.err
}

func TestNotificationsFollowCommittedChanges(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{}
	f.svc.Notifier = n
	ctx := context.Background()

	sent, err := f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.svc.SendFriendRequest(ctx, f.alice.ID, f.bob.ID)
	require.Error(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, f.bob.ID, sent.ID)
	require.NoError(t, err)

	assert.Equal(t, []int64{f.bob.ID}, n.sent)
	assert.Equal(t, []int64{f.alice.ID}, n.accepted)
}

func TestNotificationFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.svc.Notifier = &recordingNotifier{err: errors.New("queue down")}

	_, err := f.svc.SendFriendRequest(context.Background(), f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, f.hook.LastEntry().Level)
	assert.Len(t, f.edges(t), 1)
}
