package repository

import (
	"context"

	"shutter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for user and follow-graph operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateProfileImage(ctx context.Context, id uint, url string) error
	Profile(ctx context.Context, id, viewerID uint) (*models.UserProfile, error)
	SearchByUsername(ctx context.Context, query string, limit int) ([]models.User, error)
	SuggestByPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error)

	IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error)
	ToggleFollow(ctx context.Context, followerID, followingID uint) (bool, error)
	Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, int64, error)
	Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, int64, error)
	FollowingIDs(ctx context.Context, userID uint) ([]uint, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// profileCounts selects the derived relationship cardinalities of users.
const profileCounts = "(SELECT COUNT(*) FROM user_follows WHERE user_follows.following_id = users.id) AS followers_count, " +
	"(SELECT COUNT(*) FROM user_follows WHERE user_follows.follower_id = users.id) AS following_count, " +
	"(SELECT COUNT(*) FROM posts WHERE posts.user_id = users.id) AS posts_count"

type userWithCounts struct {
	models.User
	FollowersCount int64
	FollowingCount int64
	PostsCount     int64
	IsFollowing    bool
}

func (u userWithCounts) profile() models.UserProfile {
	return models.UserProfile{
		ID:              u.ID,
		Username:        u.Username,
		Bio:             u.Bio,
		ProfileImageURL: u.ProfileImageURL,
		IsVerified:      u.IsVerified,
		FollowersCount:  u.FollowersCount,
		FollowingCount:  u.FollowingCount,
		PostsCount:      u.PostsCount,
		IsFollowing:     u.IsFollowing,
		CreatedAt:       u.CreatedAt,
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("Username or email is already taken")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOrInternal(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		return nil, notFoundOrInternal(err, "User", email)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		return nil, notFoundOrInternal(err, "User", username)
	}
	return &user, nil
}

func (r *userRepository) UpdateProfileImage(ctx context.Context, id uint, url string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("profile_image_url", url)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) Profile(ctx context.Context, id, viewerID uint) (*models.UserProfile, error) {
	var row userWithCounts
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("users.*, "+profileCounts+", "+
			"EXISTS(SELECT 1 FROM user_follows WHERE user_follows.follower_id = ? AND user_follows.following_id = users.id) AS is_following",
			viewerID).
		Where("users.id = ?", id).
		Take(&row).Error
	if err != nil {
		return nil, notFoundOrInternal(err, "User", id)
	}
	profile := row.profile()
	return &profile, nil
}

func (r *userRepository) SearchByUsername(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\'`, containsPattern(query)).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) SuggestByPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\'`, prefixPattern(prefix)).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	if followerID == 0 || followingID == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserFollow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// ToggleFollow removes an existing edge or creates a missing one and reports
// whether the follower now follows. The unique pair index absorbs concurrent
// duplicate inserts.
func (r *userRepository) ToggleFollow(ctx context.Context, followerID, followingID uint) (bool, error) {
	var following bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.UserFollow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			following = false
			return nil
		}
		edge := models.UserFollow{FollowerID: followerID, FollowingID: followingID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
			return err
		}
		following = true
		return nil
	})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return following, nil
}

func (r *userRepository) Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, int64, error) {
	return r.edgeUsers(ctx, "user_follows.follower_id", "user_follows.following_id", userID, limit, offset)
}

func (r *userRepository) Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, int64, error) {
	return r.edgeUsers(ctx, "user_follows.following_id", "user_follows.follower_id", userID, limit, offset)
}

// edgeUsers lists users on the `join` side of follow edges whose `match`
// side is userID, newest edge first.
func (r *userRepository) edgeUsers(ctx context.Context, join, match string, userID uint, limit, offset int) ([]models.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.UserFollow{}).
		Where(match+" = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var users []models.User
	if err := r.db.WithContext(ctx).
		Joins("JOIN user_follows ON users.id = "+join).
		Where(match+" = ?", userID).
		Order("user_follows.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}

func (r *userRepository) FollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if userID == 0 {
		return ids, nil
	}
	if err := r.db.WithContext(ctx).Model(&models.UserFollow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
