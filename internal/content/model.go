package content

import (
	"time"

	"gorm.io/gorm"
)

// ArticleState controls whether an article appears in listings.
type ArticleState int

const (
	// StateHidden removes an article from listing queries.
	StateHidden ArticleState = 0
	// StateVisible lists the article.
	StateVisible ArticleState = 1
)

func (s ArticleState) String() string {
	if s == StateVisible {
		return "visible"
	}
	return "hidden"
}

// Tag classifies articles.
type Tag struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:64;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// Article is an owned, level-gated piece of content.
type Article struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID       int64        `gorm:"column:owner_id;not null;index:idx_articles_owner_updated,priority:1"`
	TagID         int64        `gorm:"column:tag_id;not null;index"`
	Title         string       `gorm:"column:title;size:200;not null"`
	Content       string       `gorm:"column:content;type:text;not null"`
	RequiredLevel int          `gorm:"column:required_level;not null"`
	State         ArticleState `gorm:"column:state;not null;index:idx_articles_state_updated,priority:1"`
	CreatedAt     time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time    `gorm:"column:updated_at;not null;index:idx_articles_state_updated,priority:2;index:idx_articles_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Article) TableName() string {
	return "articles"
}

// Comment is an owned remark on an article. Deleting a comment only sets DeletedAt.
type Comment struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	ArticleID  int64          `gorm:"column:article_id;not null;index"`
	OwnerID    int64          `gorm:"column:owner_id;not null;index"`
	Body       string         `gorm:"column:body;type:text;not null"`
	MarkupBody string         `gorm:"column:markup_body;type:text;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;not null"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}
