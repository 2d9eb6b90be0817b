package resolver

// Stage confidence constants. The values encode tuning against real
// sites; changing them changes which stage wins for borderline sources.
const (
	// ConfidenceFeed is assigned when a validated feed is found.
	ConfidenceFeed = 0.95

	// ConfidenceSitemap is assigned when a validated sitemap is found.
	ConfidenceSitemap = 0.9

	// ConfidencePatternAccept is the URL-pattern confidence at which a
	// guess is provisionally accepted before selector discovery runs.
	ConfidencePatternAccept = 0.85

	// ConfidencePlatform is assigned on a platform-signature match.
	ConfidencePlatform = 0.75

	// ConfidenceAPIFloor is the minimum confidence for a hidden-API hit.
	ConfidenceAPIFloor = 0.6

	// RenderingThreshold is the rendering score at which the browser
	// technique is tentatively selected.
	RenderingThreshold = 0.5

	// ConfidenceDefault is the bar a resolution must clear to avoid the
	// terminal fallback.
	ConfidenceDefault = 0.5

	// ConfidenceFloor is the terminal fallback's confidence.
	ConfidenceFloor = 0.3
)
