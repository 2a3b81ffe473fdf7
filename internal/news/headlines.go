package news

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/iabetor/briefcast/internal/logger"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxTitleLen         = 120 // 头条最大字符数
)

// Headline 一条新闻头条。
type Headline struct {
	Title     string
	FeedTitle string
	Published time.Time
}

// Fetcher 抓取 RSS 订阅源并提取最新头条，供文稿生成做上下文。
// 头条是可选增强：任何一个源抓取失败都只记日志，不影响其它源。
type Fetcher struct {
	feeds  []string
	parser *gofeed.Parser
	client *http.Client
}

// NewFetcher 创建头条抓取器。
func NewFetcher(feeds []string) *Fetcher {
	return &Fetcher{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Latest 返回所有订阅源中最新的至多 limit 条头条，按发布时间倒序。
// 所有源都失败时返回空列表而不是错误，调用方按「无头条」继续。
func (f *Fetcher) Latest(ctx context.Context, limit int) []Headline {
	if limit <= 0 {
		limit = 5
	}

	var all []Headline
	for _, url := range f.feeds {
		feed, err := f.parseFeed(ctx, url)
		if err != nil {
			logger.Warnf("[news] 抓取 %s 失败: %v", url, err)
			continue
		}
		all = append(all, convertItems(feed)...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Published.After(all[j].Published)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	logger.Infof("[news] 已获取 %d 条头条（%d 个订阅源）", len(all), len(f.feeds))
	return all
}

// Titles 返回头条的纯文本标题，格式为「标题（来源）」。
func Titles(headlines []Headline) []string {
	out := make([]string, 0, len(headlines))
	for _, h := range headlines {
		if h.FeedTitle != "" {
			out = append(out, fmt.Sprintf("%s（%s）", h.Title, h.FeedTitle))
		} else {
			out = append(out, h.Title)
		}
	}
	return out
}

// parseFeed 抓取并解析单个 Feed URL。
func (f *Fetcher) parseFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Briefcast/1.0 RSS Reader")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return f.parser.Parse(resp.Body)
}

// convertItems 将 gofeed 条目转换为 Headline。
func convertItems(feed *gofeed.Feed) []Headline {
	items := make([]Headline, 0, len(feed.Items))
	for _, it := range feed.Items {
		title := truncate(stripHTML(it.Title), maxTitleLen)
		if title == "" {
			continue
		}

		published := time.Now()
		if it.PublishedParsed != nil {
			published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			published = *it.UpdatedParsed
		}

		items = append(items, Headline{
			Title:     title,
			FeedTitle: feed.Title,
			Published: published,
		})
	}
	return items
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)

	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&apos;", "'",
	)
)

// stripHTML 剥离 HTML 标签，只保留纯文本。
func stripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = entityReplacer.Replace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// truncate 截断字符串到指定字符数（按 UTF-8 字符计算）。
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
