package service

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zapflow/bot-server-go/internal/model"
)

// Messages are the texts the dialogue engine sends. Any field can be
// overridden from a YAML file; missing fields keep their defaults.
type Messages struct {
	Welcome      string `yaml:"welcome"`
	Menu         string `yaml:"menu"`
	Handover     string `yaml:"handover"`
	FAQPrompt    string `yaml:"faq_prompt"`
	FAQRetry     string `yaml:"faq_retry"`
	SearchPrompt string `yaml:"search_prompt"`
	NoResults    string `yaml:"no_results"`
	SearchFailed string `yaml:"search_failed"`
	PriceLabel   string `yaml:"price_label"`
}

func DefaultMessages() Messages {
	return Messages{
		Welcome: "Olá! 👋 Seja bem-vindo(a).",
		Menu: "Digite o nome do modelo que você procura ou escolha uma opção:\n" +
			"1️⃣ Buscar no estoque\n" +
			"2️⃣ Falar com um atendente\n" +
			"3️⃣ Dúvidas frequentes\n\n" +
			"Digite *menu* a qualquer momento para voltar.",
		Handover:     "Certo! Um atendente vai continuar a conversa com você em instantes. Para voltar ao atendimento automático, digite *menu*.",
		FAQPrompt:    "Pode perguntar! Qual é a sua dúvida?",
		FAQRetry:     "Não encontrei uma resposta para isso. Tente perguntar de outro jeito ou digite *menu* para voltar.",
		SearchPrompt: "Digite o nome do modelo ou da marca que você procura.",
		NoResults:    "Desculpe, não encontrei nada com essa descrição.",
		SearchFailed: "Desculpe, não consegui consultar o estoque agora. Tente novamente em instantes.",
		PriceLabel:   "Preço",
	}
}

// LoadMessages reads overrides from path. An empty path returns the defaults.
func LoadMessages(path string) (Messages, error) {
	msgs := DefaultMessages()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return msgs, fmt.Errorf("read messages file: %w", err)
	}

	var overrides Messages
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return msgs, fmt.Errorf("parse messages file: %w", err)
	}

	msgs.merge(overrides)
	return msgs, nil
}

func (m *Messages) merge(o Messages) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&m.Welcome, o.Welcome)
	set(&m.Menu, o.Menu)
	set(&m.Handover, o.Handover)
	set(&m.FAQPrompt, o.FAQPrompt)
	set(&m.FAQRetry, o.FAQRetry)
	set(&m.SearchPrompt, o.SearchPrompt)
	set(&m.NoResults, o.NoResults)
	set(&m.SearchFailed, o.SearchFailed)
	set(&m.PriceLabel, o.PriceLabel)
}

// WelcomeMenu is the menu prefixed with the one-time greeting.
func (m Messages) WelcomeMenu() string {
	return m.Welcome + "\n\n" + m.Menu
}

// FormatItem renders a catalog item as a detail message.
func (m Messages) FormatItem(item model.CatalogItem) string {
	var b strings.Builder
	b.WriteString("*" + item.Title + "*")
	if item.Price > 0 {
		b.WriteString("\n" + m.PriceLabel + ": " + FormatBRL(item.Price))
	}

	keys := make([]string, 0, len(item.Attributes))
	for k := range item.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(item.Attributes[k])
		if v == "" {
			continue
		}
		b.WriteString("\n• " + k + ": " + v)
	}
	return b.String()
}

// FormatBRL formats a price as Brazilian reais, e.g. R$ 89.900,00.
func FormatBRL(value float64) string {
	cents := int64(value*100 + 0.5)
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("R$ %s,%02d", grouped.String(), frac)
}
