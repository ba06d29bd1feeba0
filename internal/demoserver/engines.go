package demoserver

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/sentinelapp/sentinel/internal/model"
)

// EICAR is the standard antivirus test string. Every file containing it is
// flagged by the demo engines.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// sample is what the engines look at.
type sample struct {
	kind model.TargetKind
	data []byte
	url  string
}

func (s sample) host() string {
	u, err := url.Parse(s.url)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Engine is one simulated antivirus engine. An empty label is reported as a
// JSON null, like real engines that found nothing.
type Engine struct {
	Name    string
	Inspect func(s sample) (model.Category, string)
}

// Engines returns the simulated engines, sorted by name.
func Engines() []Engine {
	return []Engine{
		{
			Name: "AlphaAV",
			Inspect: func(s sample) (model.Category, string) {
				switch {
				case s.kind == model.TargetFile && bytes.Contains(s.data, []byte(EICAR)):
					return model.CategoryMalicious, "EICAR-Test-File"
				case s.kind == model.TargetURL && strings.Contains(s.host(), "malware"):
					return model.CategoryMalicious, "Phishing.Generic"
				}
				return model.CategoryUndetected, ""
			},
		},
		{
			Name: "BetaScan",
			Inspect: func(s sample) (model.Category, string) {
				if s.kind == model.TargetURL {
					if strings.Contains(s.host(), "malware") {
						return model.CategoryMalicious, "malware site"
					}
					return model.CategoryHarmless, "clean"
				}
				if bytes.Contains(s.data, []byte(EICAR)) {
					return model.CategoryMalicious, "Eicar.Test.Signature"
				}
				return model.CategoryUndetected, ""
			},
		},
		{
			Name: "DeltaShield",
			Inspect: func(s sample) (model.Category, string) {
				if s.kind == model.TargetFile {
					return model.CategoryTypeUnsupported, ""
				}
				return model.CategoryHarmless, "clean"
			},
		},
		{
			Name: "EpsilonLab",
			Inspect: func(sample) (model.Category, string) {
				return model.CategoryTimeout, ""
			},
		},
		{
			Name: "GammaGuard",
			Inspect: func(s sample) (model.Category, string) {
				lower := bytes.ToLower(s.data)
				switch {
				case bytes.Contains(s.data, []byte(EICAR)):
					return model.CategorySuspicious, "Heur.Testfile"
				case bytes.Contains(lower, []byte("powershell -enc")):
					return model.CategorySuspicious, "Heur.Script.Obfuscated"
				case s.kind == model.TargetURL && strings.HasPrefix(s.url, "http://"):
					return model.CategorySuspicious, "insecure transport"
				}
				return model.CategoryUndetected, ""
			},
		},
	}
}
