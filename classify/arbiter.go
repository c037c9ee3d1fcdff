package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	iface "SortyxServer/interface"
	"SortyxServer/logger"
)

// Category is the final disposition of an item. There is no "unknown":
// absence of evidence maps to NonRecyclable as the safety-first default.
type Category string

const (
	Recyclable    Category = "Recyclable"
	NonRecyclable Category = "Non-Recyclable"
)

// CategoryInfo carries the bin metadata attached to every verdict.
type CategoryInfo struct {
	Color        string
	Description  string
	DisposalCode string
}

// WasteCategories maps each category to its bin metadata.
var WasteCategories = map[Category]CategoryInfo{
	Recyclable: {
		Color:        "Green",
		Description:  "Items that can be recycled: plastic bottles, metal cans, glass, paper, cardboard, electronics",
		DisposalCode: "REC",
	},
	NonRecyclable: {
		Color:        "Black",
		Description:  "Items that cannot be recycled: food waste, contaminated materials, styrofoam, ceramic",
		DisposalCode: "NR",
	},
}

// Verdict method tags.
const (
	MethodModel    = "yolo_model"
	MethodLLM      = "llm"
	MethodFallback = "fallback"
)

// Verdict is the normalized classification result, whichever path produced it.
type Verdict struct {
	Classification Category `json:"classification"`
	ItemName       string   `json:"item_name"`
	BinColor       string   `json:"bin_color"`
	DisposalCode   string   `json:"disposal_code"`
	Explanation    string   `json:"explanation"`
	Confidence     float32  `json:"confidence"`
	Method         string   `json:"method"`
}

var (
	recyclableKeywords = []string{
		"plastic", "bottle", "can", "metal", "aluminum", "glass",
		"paper", "cardboard", "box", "container", "jar", "tin",
	}
	nonRecyclableKeywords = []string{
		"food", "organic", "waste", "styrofoam", "ceramic", "fabric",
	}
)

// ClassifyPrompt is the fixed instructional prompt sent to the cloud model.
const ClassifyPrompt = `Classify this item as RECYCLABLE or NON-RECYCLABLE.

RECYCLABLE: plastic bottles, metal cans, glass, paper, cardboard, clean containers
NON-RECYCLABLE: food waste, styrofoam, contaminated materials, ceramics

Format: "Category: Item Name. Explanation"
Example: "Recyclable: Plastic Bottle. Clean plastic can be recycled."
`

// DefaultCloudModels are the candidate model ids tried in order.
var DefaultCloudModels = []string{
	"gemini-2.0-flash-exp",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
}

// Arbiter routes an image to the local closed-set classifier or the cloud
// vision-language model and normalizes either output into a Verdict. Any
// total failure yields the safety-first fallback verdict, never an error.
type Arbiter struct {
	local  iface.LocalClassifier
	cloud  iface.CloudVisionClassifier
	models []string
}

// NewArbiter builds the arbiter. Either collaborator may be nil; missing
// paths fall through toward the fallback verdict.
func NewArbiter(local iface.LocalClassifier, cloud iface.CloudVisionClassifier, models []string) *Arbiter {
	if len(models) == 0 {
		models = DefaultCloudModels
	}
	return &Arbiter{local: local, cloud: cloud, models: models}
}

// Classify produces a verdict for the image. method "model" tries the local
// classifier first; any other value goes straight to the cloud path.
func (a *Arbiter) Classify(ctx context.Context, img gocv.Mat, method string) Verdict {
	if strings.ToLower(method) == "model" {
		return a.classifyLocal(ctx, img)
	}
	return a.classifyCloud(ctx, img)
}

func (a *Arbiter) classifyLocal(ctx context.Context, img gocv.Mat) Verdict {
	if a.local == nil {
		return a.classifyCloud(ctx, img)
	}

	class, conf, ok, err := a.local.InferTop1(img)
	if err != nil {
		logger.Log().Error("local classification failed", zap.Error(err))
		return a.classifyCloud(ctx, img)
	}
	if !ok {
		return a.classifyCloud(ctx, img)
	}

	category, reason := MapClassToCategory(class, conf)
	info := WasteCategories[category]
	return Verdict{
		Classification: category,
		ItemName:       titleCase(class),
		BinColor:       info.Color,
		DisposalCode:   info.DisposalCode,
		Explanation:    fmt.Sprintf("AI model: %.1f%% confidence. %s", conf*100, reason),
		Confidence:     conf,
		Method:         MethodModel,
	}
}

func (a *Arbiter) classifyCloud(ctx context.Context, img gocv.Mat) Verdict {
	if a.cloud == nil {
		logger.Log().Error("cloud classifier not configured")
		return FallbackVerdict()
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		logger.Log().Error("image encode for cloud classification failed", zap.Error(err))
		return FallbackVerdict()
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	text, err := a.cloud.Classify(ctx, jpeg, ClassifyPrompt, a.models)
	if err != nil || text == "" {
		logger.Log().Error("cloud classification failed", zap.Error(err))
		return FallbackVerdict()
	}
	return ParseCloudResponse(text)
}

// MapClassToCategory maps a closed-set class name to a category via keyword
// membership. Unmatched classes are Recyclable only above 0.7 confidence,
// NonRecyclable otherwise.
func MapClassToCategory(class string, conf float32) (Category, string) {
	lower := strings.ToLower(class)
	for _, k := range recyclableKeywords {
		if strings.Contains(lower, k) {
			return Recyclable, "This item can be recycled."
		}
	}
	for _, k := range nonRecyclableKeywords {
		if strings.Contains(lower, k) {
			return NonRecyclable, "This item cannot be recycled."
		}
	}
	if conf > 0.7 {
		return Recyclable, "Classification based on AI analysis."
	}
	return NonRecyclable, "Classification based on AI analysis."
}

// ParseCloudResponse interprets the vision-language model's free text.
// Classification is Recyclable only when the text mentions "recyclable" and
// not "non-recyclable". The item name is the text between the first colon and
// the following period. The cloud model gives no calibrated score, so a fixed
// 0.85 is assigned.
func ParseCloudResponse(text string) Verdict {
	lower := strings.ToLower(text)
	category := NonRecyclable
	if strings.Contains(lower, "recyclable") && !strings.Contains(lower, "non-recyclable") {
		category = Recyclable
	}

	item := "Unknown Item"
	if i := strings.Index(text, ":"); i != -1 {
		rest := strings.TrimSpace(text[i+1:])
		if end := strings.Index(rest, "."); end != -1 {
			if name := strings.TrimSpace(rest[:end]); name != "" {
				item = name
			}
		}
	}

	info := WasteCategories[category]
	return Verdict{
		Classification: category,
		ItemName:       item,
		BinColor:       info.Color,
		DisposalCode:   info.DisposalCode,
		Explanation:    text,
		Confidence:     0.85,
		Method:         MethodLLM,
	}
}

// FallbackVerdict is the single safety backstop: when every path fails the
// system still answers, and it answers NonRecyclable.
func FallbackVerdict() Verdict {
	info := WasteCategories[NonRecyclable]
	return Verdict{
		Classification: NonRecyclable,
		ItemName:       "Unknown Item",
		BinColor:       info.Color,
		DisposalCode:   info.DisposalCode,
		Explanation:    "Could not classify - defaulting to non-recyclable for safety.",
		Confidence:     0.50,
		Method:         MethodFallback,
	}
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
