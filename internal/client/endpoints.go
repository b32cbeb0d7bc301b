package client

// Backend endpoint paths.
const (
	PathSearch        = "/search"
	PathSearchStream  = "/search/stream"
	PathSearchUnified = "/search/unified"
	PathCorpus        = "/corpus"

	PathSynthesizeLight         = "/synthesize/light"
	PathSynthesizeDeep          = "/synthesize/deep"
	PathSynthesizeStrategyLight = "/synthesize/strategy/light"
	PathSynthesizeStrategyDeep  = "/synthesize/strategy/deep"
	PathSynthesizeMacroLight    = "/synthesize/macro/light"
	PathSynthesizeMacroDeep     = "/synthesize/macro/deep"
	PathSynthesizeUnifiedMacro  = "/synthesize/unified/macro"
)
