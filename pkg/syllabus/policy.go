package syllabus

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Policy is the keyword data the filter classifies with.
// Allow entries always win over Block entries.
type Policy struct {
	Allow []string `yaml:"allow"`
	Block []string `yaml:"block"`
}

// LoadPolicy reads a YAML policy file. Missing lists fall back to the defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	p := DefaultPolicy()
	var raw Policy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if raw.Allow != nil {
		p.Allow = raw.Allow
	}
	if raw.Block != nil {
		p.Block = raw.Block
	}
	return p, nil
}

// normalized returns a copy with lower-cased, non-empty entries.
func (p Policy) normalized() Policy {
	return Policy{Allow: lowerAll(p.Allow), Block: lowerAll(p.Block)}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		out = append(out, fold(s))
	}
	return out
}

// fold lower-cases s in NFC so precomposed and decomposed Bengali letters
// match the same keyword.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// DefaultPolicy returns the built-in SEBA class 10 keyword lists.
// The lists overlap in places (e.g. "ap" matches inside many words); that is
// tolerated rather than corrected.
func DefaultPolicy() Policy {
	return Policy{
		Allow: []string{
			"বৃত্ত", "circle", "বৃত্তৰ", "circles",
			"চতুৰ্ভুজ", "quadrilateral", "cyclic quadrilateral", "চক্ৰীয় চতুৰ্ভুজ",
			"জ্যা", "chord", "স্পৰ্শক", "tangent", "tangents",
			"কেন্দ্ৰ", "center", "ব্যাস", "diameter", "ব্যাসাৰ্ধ", "radius",
			"বৃত্তচাপ", "arc", "বিপৰীত কোণ", "opposite angles",
			"স্পৰ্শবিন্দু", "point of contact", "স্পৰ্শকৰ দৈৰ্ঘ্য", "length of tangent",
			"বৃত্তস্থ কোণ", "angle in a circle", "কেন্দ্ৰস্থ কোণ", "angle at center",

			"বাস্তৱ সংখ্যা", "real numbers", "ইউক্লিড", "euclid", "গঃসাঃউঃ", "hcf", "লঃসাঃগুঃ", "lcm",
			"অমূলদ সংখ্যা", "irrational number", "পৰিমেয় সংখ্যা", "rational number",

			"বহুপদ", "polynomial", "শূন্য", "zero", "মূল", "root",

			"ৰৈখিক সমীকৰণ", "linear equation", "দুটা চলক", "two variables",

			"দ্বিঘাত সমীকৰণ", "quadratic equation", "দ্বিঘাত সূত্র", "quadratic formula",

			"সমান্তৰ প্ৰগতি", "arithmetic progression", "ap", "সাধাৰণ অন্তৰ", "common difference",

			"ত্ৰিভূজ", "triangle", "সদৃশ ত্ৰিভূজ", "similar triangles", "থেলছ", "thales",

			"স্থানাংক জ্যামিতি", "coordinate geometry", "দূৰত্ব সূত্র", "distance formula",

			"ত্ৰিকোণমিতি", "trigonometry", "sin", "cos", "tan", "cosec", "sec", "cot",

			"পৰিসংখ্যা", "statistics", "মধ্যক", "median", "গড়", "mean", " বহুলক", "mode",

			"সম্ভাৱিতা", "probability", "ঘটনা", "event",
		},
		Block: []string{
			"integration", "derivative", "calculus",
			"jee", "neet", "iit", "aiims", "engineering", "medical",
			"class 11", "bachelor", "degree",
			"quantum", "relativity", "astrophysics", "string theory",
			"python", "java", "programming", "coding", "algorithm",
			"history of ai", "who are you", "your name", "who created you",
			"integral", "differential", "vector", "matrix",
			"organic chemistry", "inorganic chemistry", "physical chemistry",
			"thermodynamics", "electrochemistry", "quantum chemistry",
			"microeconomics", "macroeconomics", "international relations",
			"literary theory", "postmodernism", "existentialism",
		},
	}
}
