package convert

import (
	"filetool/internal/formats"
)

// Plan describes how a request would be executed.
type Plan struct {
	Category formats.Category
	Mode     Mode
	Source   string
	Target   string
	Strategy Strategy
	// RemoteFallback is set when a failed local attempt would be retried
	// on the remote backend.
	RemoteFallback bool
}

// Plan validates req and selects its strategy without executing anything.
func (d *Dispatcher) Plan(req Request) (Plan, error) {
	return d.plan(req, func(State) {})
}

// plan runs the validation, classification and dispatch steps, calling
// enter as each one starts.
func (d *Dispatcher) plan(req Request, enter func(State)) (Plan, error) {
	enter(StateValidating)

	if err := CheckSize(req.File, d.cfg.MaxFileSizeBytes); err != nil {
		return Plan{}, err
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Plan{}, newError(CodeUnsupportedConversion, err.Error(), err)
	}

	p := Plan{Mode: mode, Source: req.File.Ext()}
	if p.Source == "" {
		p.Source = formats.ExtensionForMIME(req.File.ContentType)
	}

	switch mode {
	case ModeCompress:
		// Compression keeps the source format
		p.Target = p.Source
		if p.Target == "" {
			return Plan{}, newError(CodeUnsupportedConversion, "cannot determine source format", nil)
		}
	default:
		p.Target = formats.Normalize(req.TargetFormat)
		if p.Target == "" {
			return Plan{}, newError(CodeUnsupportedConversion, "no target format", nil)
		}
		if err := CheckIdentical(p.Source, p.Target); err != nil {
			return Plan{}, err
		}
	}

	enter(StateClassifying)
	p.Category = formats.Classify(req.File.Name, req.File.ContentType)
	if p.Category == formats.CategoryUnknown {
		return p, newError(CodeUnsupportedConversion, "unknown file category", nil)
	}

	enter(StateDispatching)
	p.Strategy = d.selectStrategy(p)
	if p.Strategy == StrategyNone {
		return p, newError(CodeUnsupportedConversion,
			string(p.Category)+" "+p.Source+" to "+p.Target, nil)
	}

	switch p.Strategy {
	case StrategyTranscode, StrategyAudioExtract:
		p.RemoteFallback = d.remote != nil && d.cfg.RemoteMedia
	case StrategyDocument:
		p.RemoteFallback = d.remote != nil
	}
	return p, nil
}

// selectStrategy is the dispatch table keyed by category, mode and target.
func (d *Dispatcher) selectStrategy(p Plan) Strategy {
	target := p.Target
	compress := p.Mode == ModeCompress

	switch p.Category {
	case formats.CategoryImage:
		switch {
		case compress:
			return StrategyImage
		case formats.Equivalent(target, "pdf"):
			return StrategyImageToPDF
		case offered(p.Category, target):
			return StrategyImage
		}

	case formats.CategoryAudio:
		if compress || formats.AudioExtensions[target] {
			return StrategyTranscode
		}

	case formats.CategoryVideo:
		switch {
		case compress:
			return StrategyTranscode
		case formats.AudioExtensions[target]:
			return StrategyAudioExtract
		case formats.VideoExtensions[target]:
			return StrategyTranscode
		}

	case formats.CategoryDocument:
		if !compress && !offered(p.Category, target) && !formats.DocumentExtensions[target] {
			break
		}
		if !compress && d.documents != nil && d.documents.Supports(p.Source, target) {
			return StrategyDocument
		}
		if d.remote != nil {
			return StrategyRemote
		}
	}
	return StrategyNone
}

func offered(c formats.Category, target string) bool {
	for _, t := range formats.Targets(c) {
		if formats.Equivalent(t, target) {
			return true
		}
	}
	return false
}
