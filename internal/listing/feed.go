package listing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/roomie/internal/model"
)

// FeedSize はRSSフィードに含める募集の最大件数。
const FeedSize = 50

// Feed は公開中の募集をRSS 2.0で返す。新しく公開された順に最大FeedSize件を含む。
// frontendURLは各募集の詳細ページURLの組み立てに使用する。
func (s *Service) Feed(ctx context.Context, filter model.ListingFilter, frontendURL string) ([]byte, error) {
	filter.Order = model.OrderNewest
	listings, err := s.listings.FindVisible(ctx, filter, s.now().UTC(), FeedSize)
	if err != nil {
		return nil, fmt.Errorf("募集一覧の取得に失敗しました: %w", err)
	}

	base := strings.TrimRight(frontendURL, "/")
	title := "Roomie: new rooms"
	if filter.University != "" {
		title = "Roomie: new rooms near " + filter.University
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: base + "/forms"},
		Description: "Newly published room listings",
		Items:       make([]*feeds.Item, 0, len(listings)),
	}
	if len(listings) > 0 {
		feed.Updated = publishedAt(listings[0]).UTC()
	}
	for _, l := range listings {
		link := base + "/forms/" + l.ID
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          link,
			Title:       l.Room.Name,
			Link:        &feeds.Link{Href: link},
			Description: itemDescription(l),
			Created:     publishedAt(l).UTC(),
		})
	}

	// 大学名をcategoryとして出力するため、RSS構造体に変換してから書き出す
	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	for i, item := range rss.Items {
		item.Category = listings[i].Room.NearbyUniversity
	}
	body, err := feeds.ToXML(rss)
	if err != nil {
		return nil, fmt.Errorf("RSSの生成に失敗しました: %w", err)
	}
	return []byte(body), nil
}

// publishedAt は公開日時を返す。公開日のない募集は作成日時で代用する。
func publishedAt(l *model.Listing) time.Time {
	if l.PublishDate != nil {
		return *l.PublishDate
	}
	return l.CreatedAt
}

func itemDescription(l *model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.2f %s / month", l.Room.MonthlyRent, l.Room.Currency)
	if l.Room.Address != "" {
		fmt.Fprintf(&b, ", %s", l.Room.Address)
	}
	if l.Room.Description != "" {
		b.WriteString(". ")
		b.WriteString(l.Room.Description)
	}
	return b.String()
}
