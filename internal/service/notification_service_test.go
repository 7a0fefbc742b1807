package service_test

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/audience"
	"Homestead/internal/pkg/util"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/service"
	"Homestead/internal/testutil"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu        sync.Mutex
	envelopes []ws.Envelope
	sent      map[string][]ws.Envelope
	conns     int
}

func newRecordingBroadcaster(conns int) *recordingBroadcaster {
	return &recordingBroadcaster{conns: conns, sent: make(map[string][]ws.Envelope)}
}

func (b *recordingBroadcaster) Broadcast(env *ws.Envelope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, *env)
	return b.conns
}

func (b *recordingBroadcaster) Send(c ws.Conn, env *ws.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent[c.ID()] = append(b.sent[c.ID()], *env)
	return nil
}

func (b *recordingBroadcaster) all() []ws.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ws.Envelope(nil), b.envelopes...)
}

func (b *recordingBroadcaster) sentTo(id string) []ws.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ws.Envelope(nil), b.sent[id]...)
}

type stubConn struct{ id string }

func (c stubConn) ID() string { return c.id }

func (c stubConn) Send([]byte) error { return nil }

func (c stubConn) Close(int) {}

type mapCache struct {
	mu   sync.Mutex
	list []*model.Notification
	ok   bool
	sets int

	// setErr 非空时 Set 失败且不改写已缓存的快照
	setErr error
}

func (c *mapCache) Get(context.Context) ([]*model.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list, c.ok
}

func (c *mapCache) Set(_ context.Context, list []*model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.list, c.ok = list, true
	return nil
}

func (c *mapCache) failSets(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErr = err
}

func (c *mapCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list, c.ok = nil, false
}

func newService(t *testing.T) (service.NotificationService, *testutil.MemoryNotificationRepo, *recordingBroadcaster) {
	t.Helper()
	repo := testutil.NewMemoryNotificationRepo()
	b := newRecordingBroadcaster(3)
	return service.NewNotificationService(repo, b, nil, service.NotificationOptions{}), repo, b
}

func ids(list []*model.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func TestCreate_BroadcastsNewWithFullSnapshot(t *testing.T) {
	svc, repo, b := newService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Delivered)
	assert.Equal(t, "owner-1", resp.Notification.Author)
	assert.False(t, resp.Notification.Read)
	assert.NotEmpty(t, resp.Notification.ID)

	envs := b.all()
	require.Len(t, envs, 1)
	assert.Equal(t, ws.TypeNew, envs[0].Type)
	assert.Equal(t, resp.Notification.ID, envs[0].Notification.ID)
	assert.Equal(t, []string{resp.Notification.ID}, ids(envs[0].Snapshot))
	assert.Equal(t, 1, repo.Len())
}

func TestCreate_PersonalRequiresRecipients(t *testing.T) {
	svc, repo, b := newService(t)

	_, err := svc.Create(context.Background(), &dto.CreateNotificationReq{AudienceType: model.AudiencePersonal, Title: "Rent due"}, "")
	assert.ErrorIs(t, err, service.ErrRecipientMissing)

	_, err = svc.Create(context.Background(), &dto.CreateNotificationReq{AudienceType: model.AudiencePersonal, Title: "Rent due", RecipientIDs: []string{" "}}, "")
	assert.ErrorIs(t, err, service.ErrRecipientMissing)

	_, err = svc.Create(context.Background(), &dto.CreateNotificationReq{AudienceType: "broadcast", Title: "x"}, "")
	assert.ErrorIs(t, err, service.ErrParamInvalid)

	assert.Zero(t, repo.Len())
	assert.Empty(t, b.all())
}

func TestCreate_MergesLegacyRecipient(t *testing.T) {
	svc, _, _ := newService(t)

	resp, err := svc.Create(context.Background(), &dto.CreateNotificationReq{
		AudienceType: model.AudiencePersonal,
		Title:        "Rent due",
		RecipientIDs: []string{"T1", "T1"},
		RecipientID:  "T2",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, resp.Notification.RecipientIDs)
	assert.Empty(t, resp.Notification.RecipientID)
	assert.Equal(t, "system", resp.Notification.Author)
}

func TestDelete_MissingIDStillBroadcastsOnce(t *testing.T) {
	svc, _, b := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)
	before := b.all()[0].Snapshot

	resp, err := svc.Delete(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "X", resp.DeletedID)
	assert.Nil(t, resp.DeletedRecord)

	envs := b.all()
	require.Len(t, envs, 2)
	assert.Equal(t, ws.TypeDeleted, envs[1].Type)
	assert.Equal(t, "X", envs[1].DeletedID)
	assert.Nil(t, envs[1].DeletedRecord)
	assert.Equal(t, ids(before), ids(envs[1].Snapshot))
	assert.Equal(t, []string{created.Notification.ID}, ids(envs[1].Snapshot))
}

func TestDelete_ExistingRecord(t *testing.T) {
	svc, repo, b := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)

	resp, err := svc.Delete(ctx, created.Notification.ID)
	require.NoError(t, err)
	require.NotNil(t, resp.DeletedRecord)
	assert.Equal(t, "Maintenance", resp.DeletedRecord.Title)
	assert.Zero(t, repo.Len())
	assert.Empty(t, b.all()[1].Snapshot)
}

func TestMarkRead(t *testing.T) {
	svc, _, b := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)

	resp, err := svc.MarkRead(ctx, created.Notification.ID, &dto.UpdateNotificationReq{Read: util.Ptr(true)})
	require.NoError(t, err)
	assert.True(t, resp.Notification.Read)

	envs := b.all()
	require.Len(t, envs, 2)
	assert.Equal(t, ws.TypeUpdated, envs[1].Type)
	assert.True(t, envs[1].Snapshot[0].Read)
}

func TestMarkRead_Errors(t *testing.T) {
	svc, _, b := newService(t)
	ctx := context.Background()

	_, err := svc.MarkRead(ctx, "missing", &dto.UpdateNotificationReq{Read: util.Ptr(true)})
	assert.ErrorIs(t, err, service.ErrNotificationNotFound)

	_, err = svc.MarkRead(ctx, "missing", &dto.UpdateNotificationReq{})
	assert.ErrorIs(t, err, service.ErrParamInvalid)

	_, err = svc.MarkRead(ctx, "", &dto.UpdateNotificationReq{Read: util.Ptr(true)})
	assert.ErrorIs(t, err, service.ErrParamInvalid)

	assert.Empty(t, b.all())
}

func TestScenario_AudienceViews(t *testing.T) {
	svc, _, b := newService(t)
	ctx := context.Background()

	common, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudiencePersonal, RecipientIDs: []string{"T1"}, Title: "Rent due"}, "")
	require.NoError(t, err)

	latest := b.all()[1].Snapshot
	assert.Len(t, audience.Filter(latest, "T1"), 2)
	assert.Len(t, audience.Filter(latest, "T2"), 1)

	t1, err := svc.List(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, t1, 2)
	assert.Equal(t, "Rent due", t1[0].Title)

	unread, err := svc.Unread(ctx, "T2")
	require.NoError(t, err)
	assert.Equal(t, 1, unread.Total)
	assert.Equal(t, 1, unread.UnreadCount)

	_, err = svc.Delete(ctx, common.Notification.ID)
	require.NoError(t, err)

	latest = b.all()[2].Snapshot
	require.Len(t, latest, 1)
	assert.Equal(t, "Rent due", latest[0].Title)
	assert.Len(t, audience.Filter(latest, "T1"), 1)
	assert.Empty(t, audience.Filter(latest, "T2"))
}

func TestOnConnectionOpen_SendsInitialSnapshotAfterGrace(t *testing.T) {
	repo := testutil.NewMemoryNotificationRepo()
	b := newRecordingBroadcaster(1)
	svc := service.NewNotificationService(repo, b, nil, service.NotificationOptions{GraceDelay: 20 * time.Millisecond})
	_, err := svc.Create(context.Background(), &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)

	svc.OnConnectionOpen(context.Background(), stubConn{id: "c1"})
	assert.Empty(t, b.sentTo("c1"))

	assert.Eventually(t, func() bool { return len(b.sentTo("c1")) == 1 }, time.Second, 5*time.Millisecond)
	env := b.sentTo("c1")[0]
	assert.Equal(t, ws.TypeInitialSnapshot, env.Type)
	assert.Len(t, env.Snapshot, 1)
}

func TestOnClientRequest(t *testing.T) {
	svc, _, b := newService(t)
	ctx := context.Background()
	c := stubConn{id: "c1"}

	svc.OnClientRequest(ctx, c, []byte(`{"type":"GET_SNAPSHOT"}`))
	svc.OnClientRequest(ctx, c, []byte(`{"type":"PING"}`))
	svc.OnClientRequest(ctx, c, []byte(`not json`))

	sent := b.sentTo("c1")
	require.Len(t, sent, 1)
	assert.Equal(t, ws.TypeInitialSnapshot, sent[0].Type)
	assert.NotNil(t, sent[0].Snapshot)
}

func TestResyncAndPurge(t *testing.T) {
	svc, repo, b := newService(t)
	ctx := context.Background()
	old := &model.Notification{AudienceType: model.AudienceCommon, Title: "old", Read: true, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, &model.Notification{AudienceType: model.AudienceCommon, Title: "fresh", Read: true}))

	delivered, err := svc.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, ws.TypeInitialSnapshot, b.all()[0].Type)
	assert.Len(t, b.all()[0].Snapshot, 2)

	n, err := svc.PurgeRead(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, b.all(), 2)
	assert.Equal(t, ws.TypeUpdated, b.all()[1].Type)

	// 没有可清理的记录时不广播
	n, err = svc.PurgeRead(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, b.all(), 2)
}

func TestSnapshotCache(t *testing.T) {
	repo := testutil.NewMemoryNotificationRepo()
	b := newRecordingBroadcaster(1)
	cache := &mapCache{}
	svc := service.NewNotificationService(repo, b, cache, service.NotificationOptions{})
	ctx := context.Background()

	_, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// 存储读失败时仍能从缓存返回
	repo.ListErr = errors.New("mongo down")
	list, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// 变更后的重读失败：变更生效，广播跳过，缓存失效
	_, err = svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Second"}, "")
	require.NoError(t, err)
	assert.Len(t, b.all(), 1)
	_, ok := cache.Get(ctx)
	assert.False(t, ok)

	_, err = svc.List(ctx, "")
	assert.Error(t, err)
}

func TestSnapshotCache_WriteFailureDropsStaleSnapshot(t *testing.T) {
	repo := testutil.NewMemoryNotificationRepo()
	b := newRecordingBroadcaster(1)
	cache := &mapCache{}
	svc := service.NewNotificationService(repo, b, cache, service.NotificationOptions{})
	ctx := context.Background()

	_, err := svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Maintenance"}, "")
	require.NoError(t, err)
	_, ok := cache.Get(ctx)
	require.True(t, ok)

	cache.failSets(errors.New("redis down"))
	_, err = svc.Create(ctx, &dto.CreateNotificationReq{AudienceType: model.AudienceCommon, Title: "Rent due"}, "")
	require.NoError(t, err)

	// 写缓存失败后旧快照被清掉，不会再返回只有一条的列表
	_, ok = cache.Get(ctx)
	assert.False(t, ok)

	list, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	conn := stubConn{id: "c-1"}
	svc.OnClientRequest(ctx, conn, []byte(`{"type":"GET_SNAPSHOT"}`))
	sent := b.sentTo("c-1")
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Snapshot, 2)
}
