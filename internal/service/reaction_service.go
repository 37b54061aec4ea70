package service

import (
	"context"
	"log/slog"

	"trashtalk/internal/models"
	"trashtalk/internal/observability"
	"trashtalk/internal/policy"
	"trashtalk/internal/repository"
)

// LikeNotifier is told about new likes.
type LikeNotifier interface {
	LikeCreated(ctx context.Context, actorID, ownerID, postID uint) error
}

// ReactionService records likes and challenge votes. Uniqueness is enforced
// by the store, so concurrent duplicates resolve to exactly one row. Owners are
// always resolved server side from the resource id.
type ReactionService struct {
	reactions      repository.ReactionRepository
	policy         *policy.Engine
	notifier       LikeNotifier
	postOwner      policy.OwnerLookup
	challengeOwner policy.OwnerLookup
}

// NewReactionService returns a new ReactionService.
func NewReactionService(reactions repository.ReactionRepository, owners repository.OwnershipRepository, engine *policy.Engine, notifier LikeNotifier) *ReactionService {
	return &ReactionService{
		reactions:      reactions,
		policy:         engine,
		notifier:       notifier,
		postOwner:      owners.PostOwner,
		challengeOwner: owners.ChallengeOwner,
	}
}

// Like records userID's like on a post and notifies the post's author.
func (s *ReactionService) Like(ctx context.Context, userID, postID uint) error {
	if postID == 0 {
		return models.NewInvalidArgumentError("Post is required")
	}
	ownerID, err := s.policy.AuthorizeResource(ctx, userID, postID, s.postOwner)
	if err != nil {
		return err
	}
	if err := s.reactions.CreateLike(ctx, &models.PostLike{PostID: postID, UserID: userID}); err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.LikeCreated(ctx, userID, ownerID, postID); err != nil {
			observability.GlobalLogger.ErrorContext(ctx, "like notification failed",
				slog.Uint64("post_id", uint64(postID)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// VoteChallenge records userID's vote on a challenge and returns the new vote count.
func (s *ReactionService) VoteChallenge(ctx context.Context, userID, challengeID uint) (int64, error) {
	if challengeID == 0 {
		return 0, models.NewInvalidArgumentError("Challenge is required")
	}
	ownerID, err := s.policy.AuthorizeResource(ctx, userID, challengeID, s.challengeOwner)
	if err != nil {
		return 0, err
	}
	if userID == ownerID {
		return 0, models.NewForbiddenError("You cannot vote for your own challenge")
	}
	if err := s.reactions.CreateVote(ctx, &models.ChallengeVote{ChallengeID: challengeID, UserID: userID}); err != nil {
		return 0, err
	}
	return s.reactions.CountVotes(ctx, challengeID)
}
