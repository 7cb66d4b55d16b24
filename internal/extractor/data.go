package extractor

import "golang.org/x/net/html"

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ExtractParam tunes the heuristic (layer 3) content scoring pass.
type ExtractParam struct {
	// LinkDensityThreshold is the link-text/text-length ratio above which
	// a candidate's score is penalized proportionally to the overage.
	LinkDensityThreshold float64

	// BodySpecificityBias is how close (as a fraction of <body>'s score) a
	// child candidate must score before it is preferred over <body> itself.
	BodySpecificityBias float64
}

func DefaultExtractParam() ExtractParam {
	return ExtractParam{
		LinkDensityThreshold: 0.5,
		BodySpecificityBias:  0.6,
	}
}
