// Package grouping buckets chats by how recently they were updated.
package grouping

import (
	"time"

	"github.com/choraleia/opengpt/pkg/models"
)

// Bucket labels in display order.
const (
	Today      = "Today"
	Yesterday  = "Yesterday"
	Last7Days  = "Last 7 Days"
	Last30Days = "Last 30 Days"
	Older      = "Older"
)

// Groups is the partition of a chat list. Every input chat appears in
// exactly one bucket and keeps its input order within that bucket.
type Groups struct {
	Today      []models.Chat `json:"today"`
	Yesterday  []models.Chat `json:"yesterday"`
	Last7Days  []models.Chat `json:"last7Days"`
	Last30Days []models.Chat `json:"last30Days"`
	Older      []models.Chat `json:"older"`
}

// Bucket is one labelled group.
type Bucket struct {
	Label string
	Chats []models.Chat
}

// Buckets returns the five groups in display order, empty ones included.
func (g Groups) Buckets() []Bucket {
	return []Bucket{
		{Label: Today, Chats: g.Today},
		{Label: Yesterday, Chats: g.Yesterday},
		{Label: Last7Days, Chats: g.Last7Days},
		{Label: Last30Days, Chats: g.Last30Days},
		{Label: Older, Chats: g.Older},
	}
}

// Len is the total number of chats across all buckets.
func (g Groups) Len() int {
	return len(g.Today) + len(g.Yesterday) + len(g.Last7Days) + len(g.Last30Days) + len(g.Older)
}

// Group partitions chats relative to local midnight of now, in now's
// location. Boundaries are day multiples back from that midnight; the lower
// bound of each bucket is inclusive.
func Group(chats []models.Chat, now time.Time) Groups {
	today0 := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday0 := today0.Add(-24 * time.Hour)
	week0 := today0.Add(-7 * 24 * time.Hour)
	month0 := today0.Add(-30 * 24 * time.Hour)

	g := Groups{
		Today:      []models.Chat{},
		Yesterday:  []models.Chat{},
		Last7Days:  []models.Chat{},
		Last30Days: []models.Chat{},
		Older:      []models.Chat{},
	}
	for _, c := range chats {
		t := c.UpdatedAt
		switch {
		case !t.Before(today0):
			g.Today = append(g.Today, c)
		case !t.Before(yesterday0):
			g.Yesterday = append(g.Yesterday, c)
		case !t.Before(week0):
			g.Last7Days = append(g.Last7Days, c)
		case !t.Before(month0):
			g.Last30Days = append(g.Last30Days, c)
		default:
			g.Older = append(g.Older, c)
		}
	}
	return g
}
