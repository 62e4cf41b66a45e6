package weibo

import "strings"

// extractPosts flattens one page's card list into posts. Type-9 cards
// are taken directly; type-11 group cards are unwrapped one level, which
// is as deep as the container API nests them.
func extractPosts(cards []Card) []Post {
	var posts []Post
	for _, card := range cards {
		switch card.CardType {
		case cardTypePost:
			if card.Mblog != nil {
				posts = append(posts, postFromMblog(card.Mblog))
			}
		case cardTypeGroup:
			for _, inner := range card.CardGroup {
				if inner.CardType == cardTypePost && inner.Mblog != nil {
					posts = append(posts, postFromMblog(inner.Mblog))
				}
			}
		}
	}
	return posts
}

func postFromMblog(m *Mblog) Post {
	text := CleanText(m.Text)
	p := Post{
		Mid:            m.Mid,
		CreatedAt:      m.CreatedAt,
		Text:           text,
		TextLength:     len([]rune(text)),
		Source:         m.Source,
		Favorited:      m.Favorited,
		RepostsCount:   m.RepostsCount,
		CommentsCount:  m.CommentsCount,
		AttitudesCount: m.AttitudesCount,
		PicNum:         m.PicNum,
		IsRepost:       m.RetweetedStatus != nil,
		IsLongText:     m.IsLongText,
	}
	if len(m.Pics) > 0 {
		urls := make([]string, 0, len(m.Pics))
		for _, pic := range m.Pics {
			urls = append(urls, pic.URL)
		}
		p.PicURLs = strings.Join(urls, ";")
		if p.PicNum == 0 {
			p.PicNum = len(urls)
		}
	}
	if m.User != nil {
		p.UserID = m.User.ID
		p.ScreenName = m.User.ScreenName
		p.FollowCount = m.User.FollowCount
		p.FollowersCount = m.User.FollowersCount
		p.StatusesCount = m.User.StatusesCount
		p.Verified = m.User.Verified
		p.VerifiedType = m.User.VerifiedType
		p.Gender = m.User.Gender
	}
	return p
}
