package dataset

import (
	"fmt"

	"github.com/FranksOps/brandwatch/internal/provenance"
)

// Placeholders synthesises one record per URL, in input order, shaped like
// the platform's real output. Values depend only on the index and URL.
func Placeholders(urls []string, platform Platform) []Record {
	records := make([]Record, 0, len(urls))
	for i, u := range urls {
		r := placeholder(i, u, platform)
		r.tag(provenance.Placeholder)
		records = append(records, r)
	}
	return records
}

func placeholder(i int, u string, platform Platform) Record {
	n := i + 1
	switch platform {
	case LinkedIn:
		return Record{
			"url":              u,
			"headline":         fmt.Sprintf("LinkedIn Post %d about Brand", n),
			"post_text":        fmt.Sprintf("This is a mock LinkedIn post content for %s", u),
			"hashtags":         []string{"#brand", "#business", "#innovation"},
			"tagged_companies": []string{"Company A", "Company B"},
			"tagged_people":    []string{"John Doe", "Jane Smith"},
			"user_id":          fmt.Sprintf("user_%d", n),
		}
	case Instagram:
		return Record{
			"url":                 u,
			"description":         fmt.Sprintf("Instagram post %d featuring the brand", n),
			"likes":               100 + i*50,
			"num_comments":        10 + i*5,
			"is_paid_partnership": i%2 == 0,
			"followers":           1000 + i*100,
			"user_posted":         fmt.Sprintf("instagram_user_%d", n),
		}
	case YouTube:
		return Record{
			"url":         u,
			"title":       fmt.Sprintf("YouTube Video %d about Brand", n),
			"description": fmt.Sprintf("Mock YouTube video description for %s", u),
			"youtuber":    fmt.Sprintf("youtuber_%d", n),
			"verified":    i%3 == 0,
			"views":       10000 + i*1000,
			"likes":       500 + i*50,
			"hashtags":    []string{"#brand", "#video", "#review"},
			"transcript":  fmt.Sprintf("Mock transcript for video %d discussing the brand...", n),
		}
	case X:
		return Record{
			"url":          u,
			"views":        5000 + i*500,
			"likes":        200 + i*20,
			"replies":      50 + i*5,
			"reposts":      100 + i*10,
			"hashtags":     []string{"#brand", "#tech", "#innovation"},
			"quotes":       25 + i*2,
			"bookmarks":    75 + i*7,
			"description":  fmt.Sprintf("Mock Twitter post %d about the brand", n),
			"tagged_users": []string{"@user1", "@user2"},
			"user_posted":  fmt.Sprintf("twitter_user_%d", n),
		}
	default:
		return Record{
			"url":      u,
			"markdown": fmt.Sprintf("# Mock Web Content %d\n\nThis is mock content from %s discussing the brand and its features.", n, u),
		}
	}
}
