package models

import "time"

type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	Name                string    `json:"name"`
	ProfileImage        string    `json:"profileImage"`
	Followers           []string  `json:"followers"`
	Following           []string  `json:"following"`
	FollowersCount      int       `json:"followersCount"`
	FollowingCount      int       `json:"followingCount"`
	UnreadNotifications int       `json:"unreadNotifications"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Profile is the denormalized projection of a user shown next to content the
// user produced (notification senders, comment authors).
type Profile struct {
	ID           string `json:"_id"`
	Username     string `json:"username"`
	Name         string `json:"name,omitempty"`
	ProfileImage string `json:"profileImage"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Username:     u.Username,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
	}
}

// IsFollowedBy reports whether userID is among u's followers.
func (u *User) IsFollowedBy(userID string) bool {
	for _, id := range u.Followers {
		if id == userID {
			return true
		}
	}
	return false
}
