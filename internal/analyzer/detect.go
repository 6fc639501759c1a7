package analyzer

import (
	"strings"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// Detection weights.
const (
	selectorScore       = 10
	keywordScore        = 5
	productSchemaBonus  = 25
	newsSchemaBonus     = 25
	codeBlockBonus      = 20
	articleStructBonus  = 15
	defaultTypeMaxScore = 10
)

// typeRule describes how to recognize a content type and where its main content lives.
type typeRule struct {
	selectors     []string
	keywords      []string
	mainSelectors []string
}

var typeRules = map[models.ContentType]typeRule{
	models.ContentArticle: {
		selectors:     []string{"article", "[itemtype*='Article']", ".post-content", ".article-body", ".entry-content", "[role='article']"},
		keywords:      []string{"author", "published", "posted by", "read more", "min read"},
		mainSelectors: []string{"article", ".post-content", ".article-content", ".article-body", ".entry-content", "[role='main']", "main"},
	},
	models.ContentProduct: {
		selectors:     []string{"[itemtype*='Product']", ".product", "#product", ".price", "[data-price]", ".add-to-cart", ".product-details"},
		keywords:      []string{"add to cart", "buy now", "in stock", "free shipping", "customer reviews", "price"},
		mainSelectors: []string{".product-details", ".product", "#product", "[itemtype*='Product']", "main"},
	},
	models.ContentCode: {
		selectors:     []string{"pre code", ".highlight", ".blob-code", ".code-block", ".repository-content"},
		keywords:      []string{"function", "repository", "commit", "pull request", "import", "return"},
		mainSelectors: []string{".repository-content", ".markdown-body", "main", "article"},
	},
	models.ContentDocumentation: {
		selectors:     []string{".docs", ".documentation", "nav.sidebar", ".toc", ".api-reference", "[class*='docs-']"},
		keywords:      []string{"documentation", "api reference", "getting started", "parameters", "returns", "tutorial"},
		mainSelectors: []string{".docs-content", ".documentation", ".markdown-body", "main", "article"},
	},
	models.ContentSocialMedia: {
		selectors:     []string{"[data-testid='tweet']", "[role='feed']", ".feed", ".timeline", ".comment-thread"},
		keywords:      []string{"retweet", "followers", "following", "likes", "reply", "share"},
		mainSelectors: []string{"[role='feed']", ".feed", ".timeline", "main"},
	},
	models.ContentNews: {
		selectors:     []string{"[itemtype*='NewsArticle']", ".headline", ".byline", ".dateline", ".news"},
		keywords:      []string{"breaking", "reported", "according to", "correspondent", "press release"},
		mainSelectors: []string{".story-body", ".article-body", "article", "main"},
	},
}

// typeScores computes the per-type detection score.
func typeScores(doc dom.Document, bodyText string, schema []models.SchemaEntry) map[models.ContentType]int {
	lower := strings.ToLower(bodyText)
	scores := make(map[models.ContentType]int, len(models.DetectableContentTypes))

	for _, ct := range models.DetectableContentTypes {
		rule := typeRules[ct]
		score := 0
		for _, sel := range rule.selectors {
			if _, ok := doc.QuerySelector(sel); ok {
				score += selectorScore
			}
		}
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				score += keywordScore
			}
		}
		scores[ct] = score
	}

	if hasSchemaType(schema, "Product") {
		scores[models.ContentProduct] += productSchemaBonus
	}
	if hasSchemaType(schema, "NewsArticle") {
		scores[models.ContentNews] += newsSchemaBonus
	}
	if hasSignificantCode(doc) {
		scores[models.ContentCode] += codeBlockBonus
	}
	if hasArticleStructure(doc) {
		scores[models.ContentArticle] += articleStructBonus
	}
	return scores
}

// detectType picks the highest-scoring type. Ties go to the earlier type in
// models.DetectableContentTypes; a weak best score defaults to article.
func detectType(scores map[models.ContentType]int) models.ContentType {
	best := models.ContentArticle
	bestScore := -1
	for _, ct := range models.DetectableContentTypes {
		if scores[ct] > bestScore {
			best, bestScore = ct, scores[ct]
		}
	}
	if bestScore <= defaultTypeMaxScore {
		return models.ContentArticle
	}
	return best
}

func hasSchemaType(schema []models.SchemaEntry, t string) bool {
	for _, s := range schema {
		if strings.EqualFold(s.Type, t) {
			return true
		}
	}
	return false
}

func hasSignificantCode(doc dom.Document) bool {
	blocks := doc.QuerySelectorAll("pre")
	if len(blocks) >= 3 {
		return true
	}
	chars := 0
	for _, b := range blocks {
		chars += len(b.RawText())
	}
	return chars >= 500
}

func hasArticleStructure(doc dom.Document) bool {
	_, hasH1 := doc.QuerySelector("h1")
	_, hasArticle := doc.QuerySelector("article")
	return (hasH1 || hasArticle) && len(doc.QuerySelectorAll("p")) >= 3
}
