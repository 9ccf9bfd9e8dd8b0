package notionsync

import (
	"github.com/jomei/notionapi"

	"github.com/finum/finum/internal/domain"
)

func titleProp(content string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

func richTextProp(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

func selectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Select: notionapi.Option{Name: name},
	}
}

// PatternToNotionProperties converts a recurring pattern to Notion
// properties for the Subscriptions database.
func PatternToNotionProperties(p *domain.Pattern) notionapi.Properties {
	avg, _ := p.AvgAmount.Float64()
	projected, _ := p.ProjectedAnnual.Float64()

	props := notionapi.Properties{
		"Merchant":         titleProp(p.MerchantNorm),
		"Pattern ID":       richTextProp(p.ID),
		"Frequency":        selectProp(string(p.Frequency)),
		"Avg Amount":       notionapi.NumberProperty{Number: avg},
		"Projected Annual": notionapi.NumberProperty{Number: projected},
	}

	if p.Status != "" {
		props["Status"] = selectProp(string(p.Status))
	}

	return props
}

// BucketToNotionProperties converts a budget bucket to Notion
// properties for the Budgets database.
func BucketToNotionProperties(b *domain.Bucket) notionapi.Properties {
	allocated, _ := b.Allocated.Float64()
	spent, _ := b.Spent.Float64()
	remaining, _ := b.Remaining().Float64()

	return notionapi.Properties{
		"Bucket":    titleProp(b.Name),
		"Bucket ID": richTextProp(b.ID),
		"Period":    selectProp(string(b.Period)),
		"Allocated": notionapi.NumberProperty{Number: allocated},
		"Spent":     notionapi.NumberProperty{Number: spent},
		"Remaining": notionapi.NumberProperty{Number: remaining},
	}
}
