package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trashtalk/internal/models"
	"trashtalk/internal/notifications"
	"trashtalk/internal/observability"
	"trashtalk/internal/policy"
	"trashtalk/internal/realtime"
	"trashtalk/internal/repository"

	"github.com/samber/lo"
)

// Reasons carried by streamEnded.
const (
	EndReasonStreamer     = "ended by streamer"
	EndReasonAdmin        = "ended by admin"
	EndReasonDisconnected = "streamer disconnected"
	EndReasonShutdown     = "server shutting down"
)

// StreamAnnouncer is told when a stream goes live.
type StreamAnnouncer interface {
	StreamStarted(ctx context.Context, streamerID, streamID uint) error
}

// liveStream is the in-memory state of one Live stream. mu serializes
// viewer set changes for this stream only.
type liveStream struct {
	mu      sync.Mutex
	stream  models.Stream
	private bool
	viewers map[uint]struct{}
	ended   bool
}

func (ls *liveStream) viewerIDs() []uint {
	ids := lo.Keys(ls.viewers)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StreamDetails is a stream as returned by queries.
type StreamDetails struct {
	models.Stream
	Viewers     []uint `json:"viewers"`
	ViewerCount int    `json:"viewer_count"`
}

// StreamManager runs the None -> Live -> Ended lifecycle of streams, their
// viewer sets and signaling relay.
type StreamManager struct {
	streams   repository.StreamRepository
	follows   repository.FollowRepository
	users     repository.UserRepository
	policy    *policy.Engine
	sessions  Sessions
	announcer StreamAnnouncer
	now       func() time.Time

	// mu guards the indexes below, never a liveStream's contents.
	mu         sync.Mutex
	live       map[uint]*liveStream
	byStreamer map[uint]uint
	starting   map[uint]struct{}
}

// NewStreamManager returns a new StreamManager.
func NewStreamManager(
	streams repository.StreamRepository,
	follows repository.FollowRepository,
	users repository.UserRepository,
	engine *policy.Engine,
	sessions Sessions,
	announcer StreamAnnouncer,
) *StreamManager {
	return &StreamManager{
		streams:    streams,
		follows:    follows,
		users:      users,
		policy:     engine,
		sessions:   sessions,
		announcer:  announcer,
		now:        time.Now,
		live:       make(map[uint]*liveStream),
		byStreamer: make(map[uint]uint),
		starting:   make(map[uint]struct{}),
	}
}

func (m *StreamManager) get(streamID uint) *liveStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[streamID]
}

func (m *StreamManager) byUser(streamerID uint) *liveStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byStreamer[streamerID]
	if !ok {
		return nil
	}
	return m.live[id]
}

func (m *StreamManager) snapshot() []*liveStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Values(m.live)
}

// Recover ends every stream a previous process left marked active. Viewer
// sets do not survive a restart, so those streams cannot be resumed.
func (m *StreamManager) Recover(ctx context.Context) (int64, error) {
	n, err := m.streams.EndAllActive(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.GlobalLogger.WarnContext(ctx, "ended orphaned streams", slog.Int64("count", n))
	}
	return n, nil
}

// Start makes the owner of c a streamer. The second of two concurrent starts
// for the same streamer fails with Conflict.
func (m *StreamManager) Start(ctx context.Context, c *notifications.Client) (*models.Stream, error) {
	streamerID := c.UserID

	m.mu.Lock()
	_, live := m.byStreamer[streamerID]
	_, pending := m.starting[streamerID]
	if live || pending {
		m.mu.Unlock()
		return nil, models.NewConflictError("You already have an active stream.")
	}
	m.starting[streamerID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.starting, streamerID)
		m.mu.Unlock()
	}()

	streamer, err := m.users.GetByID(ctx, streamerID)
	if err != nil {
		return nil, err
	}

	if err := m.endStale(ctx, streamerID); err != nil {
		return nil, err
	}

	stream := &models.Stream{StreamerID: streamerID, IsActive: true, StartedAt: m.now()}
	if err := m.streams.Create(ctx, stream); err != nil {
		return nil, err
	}

	ls := &liveStream{stream: *stream, private: streamer.IsPrivate(), viewers: make(map[uint]struct{})}
	m.mu.Lock()
	m.live[stream.ID] = ls
	m.byStreamer[streamerID] = stream.ID
	m.mu.Unlock()
	observability.LiveStreams.Inc()

	// Registered before joining so a close racing this start still finds
	// the stream and ends it.
	joinErr := m.sessions.Join(c, realtime.StreamRoom(stream.ID))
	ls.mu.Lock()
	ended := ls.ended
	ls.mu.Unlock()
	if joinErr != nil || ended {
		_ = m.finish(ctx, ls, EndReasonDisconnected)
		return nil, models.NewInvalidStateError("Connection closed before the stream started")
	}

	m.announce(ctx, ls)
	return stream, nil
}

// endStale closes an active row left behind when ending a stream failed to
// reach the store. The caller holds the streamer's starting slot, so no live
// stream of theirs exists in memory.
func (m *StreamManager) endStale(ctx context.Context, streamerID uint) error {
	stale, err := m.streams.GetActiveByStreamer(ctx, streamerID)
	if err != nil || stale == nil {
		return err
	}
	if _, err := m.streams.End(ctx, stale.ID, m.now()); err != nil {
		return err
	}
	observability.GlobalLogger.WarnContext(ctx, "ended stale stream",
		slog.Uint64("stream_id", uint64(stale.ID)),
		slog.Uint64("streamer_id", uint64(streamerID)),
	)
	return nil
}

// announce pushes streamStarted to everyone who may watch and hands the
// followers to the announcer for a stored notification.
func (m *StreamManager) announce(ctx context.Context, ls *liveStream) {
	ev := realtime.NewEvent(realtime.EventStreamStarted, realtime.StreamStartedPayload{
		StreamID:   ls.stream.ID,
		StreamerID: ls.stream.StreamerID,
	})

	if ls.private {
		m.sessions.EmitToUser(ls.stream.StreamerID, ev)
		followers, err := m.follows.AcceptedFollowerIDs(ctx, ls.stream.StreamerID)
		if err != nil {
			observability.GlobalLogger.ErrorContext(ctx, "failed to load stream audience",
				slog.Uint64("stream_id", uint64(ls.stream.ID)),
				slog.String("error", err.Error()),
			)
		}
		for _, id := range followers {
			m.sessions.EmitToUser(id, ev)
		}
	} else {
		m.sessions.EmitAll(ev)
	}

	if m.announcer == nil {
		return
	}
	if err := m.announcer.StreamStarted(ctx, ls.stream.StreamerID, ls.stream.ID); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "stream notification failed",
			slog.Uint64("stream_id", uint64(ls.stream.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// Join adds the owner of c to the viewers of streamID.
func (m *StreamManager) Join(ctx context.Context, c *notifications.Client, streamID uint) (*realtime.JoinedStreamPayload, error) {
	ls := m.get(streamID)
	if ls == nil {
		return nil, models.NewNotFoundError("Live stream", streamID)
	}
	viewerID := c.UserID
	streamerID := ls.stream.StreamerID
	room := realtime.StreamRoom(streamID)

	if viewerID != streamerID {
		if err := m.policy.Authorize(ctx, viewerID, streamerID); err != nil {
			return nil, err
		}
	}

	var username string
	if u, err := m.users.GetByID(ctx, viewerID); err == nil {
		username = u.Username
	}

	ls.mu.Lock()
	if ls.ended {
		ls.mu.Unlock()
		return nil, models.NewNotFoundError("Live stream", streamID)
	}
	_, already := ls.viewers[viewerID]
	added := viewerID != streamerID && !already
	if added {
		ls.viewers[viewerID] = struct{}{}
		observability.StreamViewers.Inc()
		m.sessions.EmitToRoom(room, realtime.NewEvent(realtime.EventViewerJoined, realtime.ViewerPayload{
			StreamID: streamID,
			ViewerID: viewerID,
			Username: username,
		}))
	}
	if err := m.sessions.Join(c, room); err != nil {
		ls.mu.Unlock()
		return nil, err
	}
	joined := &realtime.JoinedStreamPayload{
		StreamID:   streamID,
		StreamerID: streamerID,
		Viewers:    ls.viewerIDs(),
	}
	ls.mu.Unlock()

	// An unfollow that committed after the first check evicted nobody, so
	// the viewer is checked again now that it is visible in the set.
	if added {
		if err := m.policy.Authorize(ctx, viewerID, streamerID); err != nil {
			m.sessions.LeaveUser(viewerID, room)
			m.removeViewer(ctx, ls, viewerID)
			return nil, err
		}
	}

	m.sessions.SendTo(c, realtime.NewEvent(realtime.EventJoinedStream, joined))
	return joined, nil
}

// Leave removes viewerID from streamID. Leaving a stream you are not
// watching, or one that has ended, is a no-op.
func (m *StreamManager) Leave(ctx context.Context, viewerID, streamID uint) error {
	room := realtime.StreamRoom(streamID)
	ls := m.get(streamID)
	if ls == nil {
		m.sessions.LeaveUser(viewerID, room)
		return nil
	}
	if viewerID == ls.stream.StreamerID {
		return models.NewInvalidStateError("Streamers end their stream instead of leaving it")
	}

	m.sessions.LeaveUser(viewerID, room)
	if m.removeViewer(ctx, ls, viewerID) {
		m.sessions.EmitToUser(viewerID, realtime.NewEvent(realtime.EventLeftStream, realtime.StreamPayload{StreamID: streamID}))
	}
	return nil
}

// removeViewer drops viewerID from the set and tells the room. It reports
// whether the viewer was present.
func (m *StreamManager) removeViewer(ctx context.Context, ls *liveStream, viewerID uint) bool {
	var username string
	if u, err := m.users.GetByID(ctx, viewerID); err == nil {
		username = u.Username
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.viewers[viewerID]; !ok || ls.ended {
		return false
	}
	delete(ls.viewers, viewerID)
	observability.StreamViewers.Dec()
	m.sessions.EmitToRoom(realtime.StreamRoom(ls.stream.ID), realtime.NewEvent(realtime.EventViewerLeft, realtime.ViewerPayload{
		StreamID: ls.stream.ID,
		ViewerID: viewerID,
		Username: username,
	}))
	return true
}

func (ls *liveStream) participant(userID uint) bool {
	if userID == ls.stream.StreamerID {
		return true
	}
	_, ok := ls.viewers[userID]
	return ok
}

// RelaySignal forwards a negotiation message from fromID to the target's
// personal room. Both must take part in the same live stream and be in its
// room right now. The payload is never inspected.
func (m *StreamManager) RelaySignal(_ context.Context, fromID uint, sig realtime.Signal) error {
	if fromID == sig.TargetUserID {
		observability.SignalRelays.WithLabelValues(sig.Kind, "rejected").Inc()
		return models.NewInvalidArgumentError("Cannot signal yourself")
	}

	for _, ls := range m.snapshot() {
		room := realtime.StreamRoom(ls.stream.ID)
		ls.mu.Lock()
		ok := !ls.ended && ls.participant(fromID) && ls.participant(sig.TargetUserID)
		ls.mu.Unlock()
		if !ok || !m.sessions.UserInRoom(fromID, room) || !m.sessions.UserInRoom(sig.TargetUserID, room) {
			continue
		}

		m.sessions.EmitToUser(sig.TargetUserID, realtime.NewEvent(sig.Kind, realtime.RelayedSignalPayload{
			FromUserID: fromID,
			StreamID:   ls.stream.ID,
			Payload:    sig.Payload,
		}))
		observability.SignalRelays.WithLabelValues(sig.Kind, "relayed").Inc()
		return nil
	}

	observability.SignalRelays.WithLabelValues(sig.Kind, "rejected").Inc()
	return models.NewForbiddenError("Target user is not in your stream")
}

// End ends streamID. Only its streamer or an admin may end it.
func (m *StreamManager) End(ctx context.Context, callerID, streamID uint) error {
	ls := m.get(streamID)
	if ls == nil {
		return models.NewNotFoundError("Live stream", streamID)
	}
	reason, err := m.endReason(ctx, callerID, ls.stream.StreamerID)
	if err != nil {
		return err
	}
	return m.finish(ctx, ls, reason)
}

// EndByStreamer ends the live stream of streamerID.
func (m *StreamManager) EndByStreamer(ctx context.Context, callerID, streamerID uint) error {
	ls := m.byUser(streamerID)
	if ls == nil {
		return models.NewNotFoundError("Live stream for user", streamerID)
	}
	reason, err := m.endReason(ctx, callerID, streamerID)
	if err != nil {
		return err
	}
	return m.finish(ctx, ls, reason)
}

func (m *StreamManager) endReason(ctx context.Context, callerID, streamerID uint) (string, error) {
	if callerID == streamerID {
		return EndReasonStreamer, nil
	}
	caller, err := m.users.GetByID(ctx, callerID)
	if err != nil {
		return "", err
	}
	if !caller.IsAdmin {
		return "", models.NewForbiddenError("Only the streamer or an admin can end this stream")
	}
	return EndReasonAdmin, nil
}

// finish moves ls to Ended: the room hears streamEnded, the viewer set and
// room are cleared, and the row is closed.
func (m *StreamManager) finish(ctx context.Context, ls *liveStream, reason string) error {
	id := ls.stream.ID
	room := realtime.StreamRoom(id)

	ls.mu.Lock()
	if ls.ended {
		ls.mu.Unlock()
		return models.NewNotFoundError("Live stream", id)
	}
	ls.ended = true
	viewers := len(ls.viewers)
	ls.viewers = nil
	m.sessions.EmitToRoom(room, realtime.NewEvent(realtime.EventStreamEnded, realtime.StreamEndedPayload{StreamID: id, Reason: reason}))
	m.sessions.CloseRoom(room)
	ls.mu.Unlock()

	m.mu.Lock()
	delete(m.live, id)
	if m.byStreamer[ls.stream.StreamerID] == id {
		delete(m.byStreamer, ls.stream.StreamerID)
	}
	m.mu.Unlock()

	observability.LiveStreams.Dec()
	observability.StreamViewers.Sub(float64(viewers))

	if _, err := m.streams.End(ctx, id, m.now()); err != nil {
		// the row is closed by the streamer's next Start, or by Recover
		return err
	}
	observability.GlobalLogger.InfoContext(ctx, "stream ended",
		slog.Uint64("stream_id", uint64(id)),
		slog.String("reason", reason),
	)
	return nil
}

// HandleClose is the session registry close hook. A viewer whose last
// socket in a stream room closed leaves that stream; a streamer with no
// socket left in their stream room ends it.
func (m *StreamManager) HandleClose(ctx context.Context, c *notifications.Client, rooms []string) error {
	var errs []error
	for _, room := range rooms {
		id, ok := realtime.ParseStreamRoom(room)
		if !ok {
			continue
		}
		ls := m.get(id)
		if ls == nil || m.sessions.UserInRoom(c.UserID, room) {
			continue
		}
		if c.UserID == ls.stream.StreamerID {
			if err := m.finish(ctx, ls, EndReasonDisconnected); err != nil && !models.IsCode(err, models.CodeNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		m.removeViewer(ctx, ls, c.UserID)
	}

	// a streamer socket outside the room still owns the stream
	if ls := m.byUser(c.UserID); ls != nil && !m.sessions.UserInRoom(c.UserID, realtime.StreamRoom(ls.stream.ID)) {
		if err := m.finish(ctx, ls, EndReasonDisconnected); err != nil && !models.IsCode(err, models.CodeNotFound) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// HandleFollowEvent keeps live streams in step with the follow graph. A
// removed follower who can no longer see the streamer is evicted; a newly accepted
// follower of a live streamer is told the stream is on.
func (m *StreamManager) HandleFollowEvent(ctx context.Context, ev FollowEvent) {
	ls := m.byUser(ev.Edge.FollowingID)
	if ls == nil {
		return
	}
	followerID := ev.Edge.FollowerID

	switch ev.Kind {
	case FollowRemoved:
		allowed, err := m.policy.CanViewUser(ctx, followerID, ls.stream.StreamerID)
		if err != nil || allowed {
			return
		}
		m.sessions.LeaveUser(followerID, realtime.StreamRoom(ls.stream.ID))
		if m.removeViewer(ctx, ls, followerID) {
			m.sessions.EmitToUser(followerID, realtime.NewEvent(realtime.EventError, realtime.ErrorPayload{
				Code:    models.CodeForbidden,
				Message: "You no longer have access to this stream",
			}))
		}
	case FollowAccepted:
		m.sessions.EmitToUser(followerID, realtime.NewEvent(realtime.EventStreamStarted, realtime.StreamStartedPayload{
			StreamID:   ls.stream.ID,
			StreamerID: ls.stream.StreamerID,
		}))
	}
}

func (m *StreamManager) details(stream models.Stream) StreamDetails {
	d := StreamDetails{Stream: stream, Viewers: []uint{}}
	if ls := m.get(stream.ID); ls != nil {
		ls.mu.Lock()
		if !ls.ended {
			d.Viewers = ls.viewerIDs()
		}
		ls.mu.Unlock()
	}
	d.ViewerCount = len(d.Viewers)
	return d
}

// Get returns streamID with its live viewers, if actorID may see the streamer.
func (m *StreamManager) Get(ctx context.Context, actorID, streamID uint) (*StreamDetails, error) {
	stream, err := m.streams.GetByID(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if err := m.policy.Authorize(ctx, actorID, stream.StreamerID); err != nil {
		return nil, err
	}
	d := m.details(*stream)
	return &d, nil
}

// ActiveStreams lists live streams whose streamer actorID may see.
func (m *StreamManager) ActiveStreams(ctx context.Context, actorID uint) ([]StreamDetails, error) {
	streams, err := m.streams.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	owners := lo.Uniq(lo.Map(streams, func(s models.Stream, _ int) uint { return s.StreamerID }))
	visible, err := m.policy.FilterVisible(ctx, actorID, owners)
	if err != nil {
		return nil, err
	}
	allowed := lo.SliceToMap(visible, func(id uint) (uint, struct{}) { return id, struct{}{} })

	out := make([]StreamDetails, 0, len(streams))
	for _, s := range streams {
		if _, ok := allowed[s.StreamerID]; ok {
			out = append(out, m.details(s))
		}
	}
	return out, nil
}

// Shutdown ends every live stream.
func (m *StreamManager) Shutdown(ctx context.Context) error {
	var first error
	for _, ls := range m.snapshot() {
		if err := m.finish(ctx, ls, EndReasonShutdown); err != nil && first == nil && !models.IsCode(err, models.CodeNotFound) {
			first = err
		}
	}
	return first
}
