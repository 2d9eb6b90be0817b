package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// Heuristic selector-detector scoring. Additive per signal, capped.
const (
	selectorBaseScore     = 0.4
	selectorTitleBonus    = 0.2
	selectorDateBonus     = 0.1
	selectorThumbBonus    = 0.1
	selectorVolumeBonus   = 0.1
	selectorClassBonus    = 0.1
	selectorScoreCap      = 0.9
	minRepeatingItems     = 3
	volumeBonusThreshold  = 5
	minCandidateTitleRune = 3
)

// datePattern matches numeric date shapes inside list items.
var datePattern = regexp.MustCompile(`\d{4}[-./년]\s?\d{1,2}[-./월]\s?\d{1,2}|\d{1,2}\s*(분|시간|일|주)\s*전|\d+ (minutes?|hours?|days?) ago`)

// titleSelectors locate the title element inside a list item, in
// preference order.
var titleSelectors = []string{"h1", "h2", "h3", "h4", ".title", ".tit", ".subject", "strong", "dt", "a"}

// dateSelectors locate the date element inside a list item.
var dateSelectors = []string{"time", ".date", ".time", ".created", ".reg-date", ".reg_date", "span.day"}

// selectorResult pairs a selector set with its detection confidence.
type selectorResult struct {
	selectors  *domain.SelectorConfig
	confidence float64
	method     string
}

// detectSelectors runs heuristic and classifier-assisted selector
// detection concurrently, retrying against rendered HTML when the raw
// fetch looks unrendered. The best selector set is attached to the
// technique decided by the earlier stages.
func (r *Resolver) detectSelectors(ctx context.Context, target, html string, guess patternGuess, requiresJS bool, renderScore float64) *domain.StrategyResolution {
	results := r.runDetectors(ctx, target, html)

	best := pickBest(results)

	// A weak result on a suspected SPA usually means the list only
	// exists in the rendered DOM. Retry there.
	if (best == nil || best.confidence < ConfidenceDefault) && requiresJS && r.renderer != nil {
		if rendered := r.renderTarget(ctx, target); rendered != "" {
			if renderedBest := pickBest(r.runDetectors(ctx, target, rendered)); renderedBest != nil {
				best = renderedBest
			}
		}
	}

	technique, techniqueConfidence := r.decideTechnique(ctx, target, html, guess, requiresJS, renderScore)

	if best == nil {
		if techniqueConfidence < ConfidenceDefault {
			return nil
		}

		resolution := &domain.StrategyResolution{
			Technique:  technique,
			Fallbacks:  domain.DefaultFallbacks(technique),
			Confidence: techniqueConfidence,
			Method:     techniqueMethod(guess, requiresJS),
			RequiresJS: requiresJS,
		}

		return resolution
	}

	confidence := best.confidence
	if techniqueConfidence > confidence {
		confidence = techniqueConfidence
	}

	return &domain.StrategyResolution{
		Technique:  technique,
		Fallbacks:  domain.DefaultFallbacks(technique),
		Selectors:  best.selectors,
		Confidence: confidence,
		Method:     best.method,
		RequiresJS: requiresJS,
	}
}

// runDetectors fans out the rule-based matcher and the classifier
// proposal over one HTML snapshot.
func (r *Resolver) runDetectors(ctx context.Context, target, html string) []selectorResult {
	var (
		heuristic *selectorResult
		assisted  *selectorResult
	)

	g, detectCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if selectors, score := DetectSelectors(html); selectors != nil {
			heuristic = &selectorResult{
				selectors:  selectors,
				confidence: score,
				method:     domain.DetectionSelectors,
			}
		}

		return nil
	})

	if r.classifier != nil {
		g.Go(func() error {
			proposal, err := r.classifier.ProposeSelectors(detectCtx, target, html)
			if err != nil || proposal == nil {
				return nil
			}

			assisted = &selectorResult{
				selectors:  &proposal.Selectors,
				confidence: proposal.Confidence,
				method:     domain.DetectionClassifier,
			}

			return nil
		})
	}

	_ = g.Wait()

	var results []selectorResult
	if heuristic != nil {
		results = append(results, *heuristic)
	}

	if assisted != nil {
		results = append(results, *assisted)
	}

	return results
}

// decideTechnique settles the technique for a selector-based
// resolution: a strong pattern guess wins, then a suspected SPA, then a
// classifier vote, then static.
func (r *Resolver) decideTechnique(ctx context.Context, target, html string, guess patternGuess, requiresJS bool, renderScore float64) (domain.Technique, float64) {
	if guess.confidence >= ConfidencePatternAccept {
		return guess.technique, guess.confidence
	}

	if requiresJS {
		return domain.TechniqueRendered, renderScore
	}

	if r.classifier != nil {
		vote, err := r.classifier.ClassifySourceType(ctx, target, html)
		if err == nil && vote != nil && vote.Technique != domain.TechniqueAuto {
			r.log.Debug("classifier type vote",
				logger.String("technique", vote.Technique.String()),
				logger.Float64("confidence", vote.Confidence))

			return vote.Technique, vote.Confidence
		}
	}

	return domain.TechniqueStatic, guess.confidence
}

// techniqueMethod tags a selector-less resolution by what decided it.
func techniqueMethod(guess patternGuess, requiresJS bool) string {
	if requiresJS {
		return domain.DetectionRendering
	}

	if guess.confidence >= ConfidencePatternAccept {
		return domain.DetectionURLPattern
	}

	return domain.DetectionClassifier
}

// renderTarget fetches browser-rendered HTML, degrading to "" on any
// failure.
func (r *Resolver) renderTarget(ctx context.Context, target string) string {
	result, err := r.renderer.Render(ctx, target)
	if err != nil {
		r.log.Warn("render for selector retry failed",
			logger.String("url", target), logger.Err(err))

		return ""
	}

	return result.HTML
}

// pickBest returns the highest-confidence selector result.
func pickBest(results []selectorResult) *selectorResult {
	var best *selectorResult

	for i := range results {
		if best == nil || results[i].confidence > best.confidence {
			best = &results[i]
		}
	}

	return best
}

// DetectSelectors runs the rule-based DOM pattern matcher: find
// repeating sibling structures containing links, score them by the
// article-ish sub-elements they carry, and emit a selector set for the
// best group.
func DetectSelectors(html string) (*domain.SelectorConfig, float64) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0
	}

	var (
		bestConfig *domain.SelectorConfig
		bestScore  float64
	)

	doc.Find("ul, ol, tbody, section, div, main").Each(func(_ int, container *goquery.Selection) {
		groups := groupChildren(container)

		for signature, group := range groups {
			if len(group) < minRepeatingItems {
				continue
			}

			if group[0].Find("a[href]").Length() == 0 {
				continue
			}

			config, score := scoreGroup(container, signature, group)
			if score > bestScore {
				bestConfig = config
				bestScore = score
			}
		}
	})

	return bestConfig, bestScore
}

// childSignature identifies a repeating child shape by tag and first
// class.
func childSignature(sel *goquery.Selection) string {
	node := sel.Get(0)
	if node == nil {
		return ""
	}

	tag := node.Data
	class := firstClass(sel)

	if class == "" {
		return tag
	}

	return tag + "." + class
}

// groupChildren buckets a container's element children by signature.
func groupChildren(container *goquery.Selection) map[string][]*goquery.Selection {
	groups := map[string][]*goquery.Selection{}

	container.Children().Each(func(_ int, child *goquery.Selection) {
		sig := childSignature(child)
		if sig == "" {
			return
		}

		groups[sig] = append(groups[sig], child)
	})

	return groups
}

// scoreGroup scores one repeating group and builds its selector set.
func scoreGroup(container *goquery.Selection, signature string, group []*goquery.Selection) (*domain.SelectorConfig, float64) {
	first := group[0]
	score := selectorBaseScore

	config := &domain.SelectorConfig{
		Container: containerSelector(container),
		Item:      signature,
		Link:      "a",
	}

	if strings.Contains(signature, ".") {
		score += selectorClassBonus
	}

	if len(group) >= volumeBonusThreshold {
		score += selectorVolumeBonus
	}

	if titleSel := findTitleSelector(first); titleSel != "" {
		config.Title = titleSel

		if titleSel != "a" {
			score += selectorTitleBonus
		}
	}

	if dateSel, dateAttr := findDateSelector(first); dateSel != "" {
		config.Date = dateSel
		config.DateAttr = dateAttr
		score += selectorDateBonus
	} else if datePattern.MatchString(first.Text()) {
		score += selectorDateBonus / 2
	}

	if first.Find("img").Length() > 0 {
		config.Thumbnail = "img"
		score += selectorThumbBonus
	}

	if score > selectorScoreCap {
		score = selectorScoreCap
	}

	return config, score
}

// containerSelector names the container as tag plus first class.
func containerSelector(container *goquery.Selection) string {
	node := container.Get(0)
	if node == nil {
		return ""
	}

	tag := node.Data
	if class := firstClass(container); class != "" {
		return fmt.Sprintf("%s.%s", tag, class)
	}

	if id, ok := container.Attr("id"); ok && id != "" {
		return fmt.Sprintf("%s#%s", tag, id)
	}

	return tag
}

// findTitleSelector picks the first title-ish element with real text.
func findTitleSelector(item *goquery.Selection) string {
	for _, sel := range titleSelectors {
		found := item.Find(sel).First()
		if found.Length() == 0 {
			continue
		}

		text := strings.TrimSpace(found.Text())
		if len([]rune(text)) >= minCandidateTitleRune {
			return sel
		}
	}

	return ""
}

// findDateSelector picks the first element carrying a date shape. A
// matched time element with a datetime attribute also names the
// attribute, so extraction reads the machine date instead of the
// display text.
func findDateSelector(item *goquery.Selection) (string, string) {
	for _, sel := range dateSelectors {
		found := item.Find(sel).First()
		if found.Length() == 0 {
			continue
		}

		if sel == "time" {
			if _, ok := found.Attr("datetime"); ok {
				return sel, "datetime"
			}
		}

		if datePattern.MatchString(found.Text()) {
			return sel, ""
		}
	}

	return "", ""
}

// firstClass returns the first class token of an element.
func firstClass(sel *goquery.Selection) string {
	class, ok := sel.Attr("class")
	if !ok {
		return ""
	}

	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}
