package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNoLabels = errors.New("classifier returned no labels")

// LabelCaptioner describes an image by its most likely ImageNet labels. It
// is the offline alternative to a vision chat model.
type LabelCaptioner struct {
	classifier *Classifier
}

func NewLabelCaptioner(classifier *Classifier) *LabelCaptioner {
	return &LabelCaptioner{classifier: classifier}
}

func (c *LabelCaptioner) Caption(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	labels, err := c.classifier.Classify(png)
	if err != nil {
		return "", err
	}
	return describe(labels)
}

func describe(labels []LabelScore) (string, error) {
	names := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		name := strings.TrimSpace(l.Label)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", ErrNoLabels
	}
	return fmt.Sprintf("Image that appears to show: %s.", strings.Join(names, ", ")), nil
}
