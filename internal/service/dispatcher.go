package service

import (
	"context"
	"fmt"
	"log/slog"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"
	"trashtalk/internal/realtime"
	"trashtalk/internal/repository"
)

// Dispatcher computes recipient sets, persists the notification, then pushes
// it to each recipient's personal room. Recipients without a live socket see
// it on their next inbox fetch.
type Dispatcher struct {
	notifications *NotificationService
	follows       repository.FollowRepository
	users         repository.UserRepository
	emitter       Emitter
}

// NewDispatcher returns a new Dispatcher.
func NewDispatcher(notifications *NotificationService, follows repository.FollowRepository, users repository.UserRepository, emitter Emitter) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		follows:       follows,
		users:         users,
		emitter:       emitter,
	}
}

// deliver persists d for recipients and pushes event to each of them.
// payload builds the event body once the notification id is known.
func (d *Dispatcher) deliver(ctx context.Context, draft Draft, recipients []uint, event string, payload func(*models.Notification) interface{}) (*models.Notification, error) {
	observability.NotificationFanoutSize.Observe(float64(len(recipients)))
	if len(recipients) == 0 {
		return nil, nil
	}

	n, err := d.notifications.Publish(ctx, draft, recipients)
	if err != nil {
		observability.NotificationDeliveries.WithLabelValues(string(draft.Kind), "failed").Inc()
		return nil, err
	}

	ev := realtime.NewEvent(event, payload(n))
	for _, uid := range recipients {
		outcome := "deferred"
		if d.emitter.EmitToUser(uid, ev) > 0 {
			outcome = "live"
		}
		observability.NotificationDeliveries.WithLabelValues(string(draft.Kind), outcome).Inc()
	}
	return n, nil
}

func (d *Dispatcher) username(ctx context.Context, id uint) (string, error) {
	u, err := d.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func notificationPayload(actorID, resourceID uint) func(*models.Notification) interface{} {
	return func(n *models.Notification) interface{} {
		return realtime.NotificationPayload{
			NotificationID: n.ID,
			Message:        n.Message,
			ActorID:        actorID,
			ResourceID:     resourceID,
		}
	}
}

// toFollowers notifies every accepted follower of authorID.
func (d *Dispatcher) toFollowers(ctx context.Context, authorID, resourceID uint, kind models.NotificationKind, event, format string) error {
	name, err := d.username(ctx, authorID)
	if err != nil {
		return err
	}
	followers, err := d.follows.AcceptedFollowerIDs(ctx, authorID)
	if err != nil {
		return err
	}
	draft := Draft{AuthorID: authorID, Kind: kind, Message: fmt.Sprintf(format, name)}
	_, err = d.deliver(ctx, draft, followers, event, notificationPayload(authorID, resourceID))
	return err
}

// toOwner notifies the owner of a resource about actorID's action on it.
// Acting on your own resource notifies nobody.
func (d *Dispatcher) toOwner(ctx context.Context, actorID, ownerID, resourceID uint, kind models.NotificationKind, event, format string) error {
	if actorID == ownerID {
		return nil
	}
	users, err := d.users.GetByIDs(ctx, []uint{actorID, ownerID})
	if err != nil {
		return err
	}
	actor, owner := users[actorID], users[ownerID]
	if actor == nil {
		return models.NewNotFoundError("User", actorID)
	}
	if owner == nil {
		return models.NewNotFoundError("User", ownerID)
	}

	draft := Draft{AuthorID: actorID, Kind: kind, Message: fmt.Sprintf(format, owner.Username, actor.Username)}
	_, err = d.deliver(ctx, draft, []uint{ownerID}, event, notificationPayload(actorID, resourceID))
	return err
}

// PostCreated notifies the author's followers about a new post.
func (d *Dispatcher) PostCreated(ctx context.Context, authorID, postID uint) error {
	return d.toFollowers(ctx, authorID, postID, models.NotificationKindPost, realtime.EventNewPost, "%s has posted a new post!")
}

// ChallengeCreated notifies the author's followers about a new challenge.
// Challenges created by an admin are broadcast to everyone.
func (d *Dispatcher) ChallengeCreated(ctx context.Context, authorID, challengeID uint) error {
	author, err := d.users.GetByID(ctx, authorID)
	if err != nil {
		return err
	}
	if !author.IsAdmin {
		return d.toFollowers(ctx, authorID, challengeID, models.NotificationKindChallenge, realtime.EventNewChallenge, "%s has created a new challenge!")
	}

	n, err := d.notifications.Broadcast(ctx, Draft{
		AuthorID: authorID,
		Kind:     models.NotificationKindChallenge,
		Message:  fmt.Sprintf("%s has created a new challenge!", author.Username),
	})
	if err != nil {
		return err
	}
	d.emitter.EmitAll(realtime.NewEvent(realtime.EventNewChallenge, notificationPayload(authorID, challengeID)(n)))
	return nil
}

// CommentCreated notifies the post owner about a comment.
func (d *Dispatcher) CommentCreated(ctx context.Context, actorID, ownerID, postID uint) error {
	return d.toOwner(ctx, actorID, ownerID, postID, models.NotificationKindComment, realtime.EventNewComment, "%s, %s commented on your post!")
}

// LikeCreated notifies the post owner about a like.
func (d *Dispatcher) LikeCreated(ctx context.Context, actorID, ownerID, postID uint) error {
	return d.toOwner(ctx, actorID, ownerID, postID, models.NotificationKindLike, realtime.EventNewLike, "%s, %s liked your post!")
}

// ReportFiled notifies the reported user.
func (d *Dispatcher) ReportFiled(ctx context.Context, reporterID, reportedID, reportID uint) error {
	if reporterID == reportedID {
		return models.NewInvalidArgumentError("You cannot report yourself")
	}
	name, err := d.username(ctx, reporterID)
	if err != nil {
		return err
	}
	draft := Draft{
		AuthorID: reporterID,
		Kind:     models.NotificationKindReport,
		Message:  fmt.Sprintf("%s has filed a complaint against you.", name),
	}
	_, err = d.deliver(ctx, draft, []uint{reportedID}, realtime.EventNewReport, notificationPayload(reporterID, reportID))
	return err
}

// StreamStarted notifies the streamer's followers that they went live.
func (d *Dispatcher) StreamStarted(ctx context.Context, streamerID, streamID uint) error {
	return d.toFollowers(ctx, streamerID, streamID, models.NotificationKindStream, realtime.EventNewStream, "%s started a live stream!")
}

// AdvertisementPublished pushes an ad to every connected user. Ads are not stored.
func (d *Dispatcher) AdvertisementPublished(_ context.Context, ad interface{}) int {
	return d.emitter.EmitAll(realtime.NewEvent(realtime.EventNewAdvertisement, ad))
}

// AdminBroadcast stores a broadcast from adminID and pushes it to every
// connected user.
func (d *Dispatcher) AdminBroadcast(ctx context.Context, adminID uint, message string) (*models.Notification, error) {
	admin, err := d.users.GetByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin {
		return nil, models.NewForbiddenError("Only admins can broadcast notifications")
	}

	n, err := d.notifications.Broadcast(ctx, Draft{AuthorID: adminID, Kind: models.NotificationKindBroadcast, Message: message})
	if err != nil {
		return nil, err
	}

	sent := d.emitter.EmitAll(realtime.NewEvent(realtime.EventNewNotification, realtime.NotificationPayload{
		NotificationID: n.ID,
		Message:        n.Message,
		ActorID:        adminID,
	}))
	observability.NotificationDeliveries.WithLabelValues(string(n.Kind), "live").Add(float64(sent))
	return n, nil
}

// HandleFollowEvent notifies the other side of a follow request or acceptance.
func (d *Dispatcher) HandleFollowEvent(ctx context.Context, ev FollowEvent) {
	var err error
	switch ev.Kind {
	case FollowRequested:
		err = d.followRequested(ctx, ev.Edge)
	case FollowAccepted:
		err = d.followAccepted(ctx, ev.Edge)
	}
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "follow notification failed",
			slog.String("kind", ev.Kind.String()),
			slog.Uint64("follower_id", uint64(ev.Edge.FollowerID)),
			slog.Uint64("following_id", uint64(ev.Edge.FollowingID)),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) followRequested(ctx context.Context, edge models.Follow) error {
	name, err := d.username(ctx, edge.FollowerID)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("%s sent you a follow request", name)
	if edge.Accepted() {
		msg = fmt.Sprintf("%s has subscribed to you.", name)
	}
	return d.followNotice(ctx, edge, edge.FollowerID, edge.FollowingID, msg)
}

func (d *Dispatcher) followAccepted(ctx context.Context, edge models.Follow) error {
	name, err := d.username(ctx, edge.FollowingID)
	if err != nil {
		return err
	}
	return d.followNotice(ctx, edge, edge.FollowingID, edge.FollowerID, fmt.Sprintf("%s accepted your follow request", name))
}

func (d *Dispatcher) followNotice(ctx context.Context, edge models.Follow, actorID, recipientID uint, msg string) error {
	draft := Draft{AuthorID: actorID, Kind: models.NotificationKindFollow, Message: msg}
	_, err := d.deliver(ctx, draft, []uint{recipientID}, realtime.EventNewFollower, func(n *models.Notification) interface{} {
		return realtime.FollowerPayload{
			NotificationID: n.ID,
			FollowerID:     edge.FollowerID,
			FollowingID:    edge.FollowingID,
			Status:         string(edge.Status),
			Message:        n.Message,
		}
	})
	return err
}
