package usecases

import (
	"fmt"
	"strings"

	"neowhatai/internal/entities"
)

// Branch identifies which instruction block the system message carries.
type Branch int

const (
	BranchFactual Branch = iota
	BranchSynthesis
	BranchNoMatch
	BranchNoKnowledgeBase
)

func (b Branch) String() string {
	switch b {
	case BranchFactual:
		return "factual"
	case BranchSynthesis:
		return "synthesis"
	case BranchNoMatch:
		return "no_match"
	case BranchNoKnowledgeBase:
		return "no_knowledge_base"
	}
	return fmt.Sprintf("branch(%d)", b)
}

// Conversation is the message list sent to the model, plus the branch that built it.
type Conversation struct {
	Messages []entities.ChatMessage
	Branch   Branch
}

// ConversationAssembler turns a tenant prompt, retrieved context and history into chat messages.
type ConversationAssembler struct{}

func NewConversationAssembler() *ConversationAssembler {
	return &ConversationAssembler{}
}

// Assemble returns system, history (oldest first, user/assistant pairs), then the question.
// The context is embedded verbatim.
func (a *ConversationAssembler) Assemble(tenant *entities.Tenant, retrieval Retrieval, history []entities.ConversationLog, question string) Conversation {
	system, branch := a.systemContent(tenant.Prompt(), retrieval, question)

	messages := make([]entities.ChatMessage, 0, 2+2*len(history))
	messages = append(messages, entities.ChatMessage{Role: entities.RoleSystem, Content: system})
	for _, h := range history {
		messages = append(messages,
			entities.ChatMessage{Role: entities.RoleUser, Content: h.MessageIn},
			entities.ChatMessage{Role: entities.RoleAssistant, Content: h.MessageOut})
	}
	messages = append(messages, entities.ChatMessage{Role: entities.RoleUser, Content: question})

	return Conversation{Messages: messages, Branch: branch}
}

func (a *ConversationAssembler) systemContent(prompt string, retrieval Retrieval, question string) (string, Branch) {
	switch {
	case retrieval.Context != "":
		if IsFactual(question) {
			return factualInstructions(prompt, retrieval.Context, question), BranchFactual
		}
		return synthesisInstructions(prompt, retrieval.Context), BranchSynthesis
	case retrieval.HasDocuments:
		return prompt + `

**IMPORTANT :** La base de connaissances contient des documents, mais aucun passage pertinent n'a été trouvé pour cette question.

Explique poliment que tu n'as rien trouvé de pertinent dans les documents disponibles et invite l'utilisateur à reformuler sa question ou à la préciser.`, BranchNoMatch
	default:
		return prompt + `

**IMPORTANT :** Aucun document n'a encore été importé ni vectorisé pour ce compte.

Explique poliment que tu n'as pas encore accès à une base de connaissances et que des documents doivent être ajoutés avant de pouvoir répondre aux questions.`, BranchNoKnowledgeBase
	}
}

const notFoundReply = `"Je ne trouve pas cette information dans nos documents. Pourriez-vous reformuler votre question ?"`

func synthesisInstructions(prompt, context string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n**CONSIGNES :**\n")
	b.WriteString("- Le contexte ci-dessous provient des documents vectorisés de l'entreprise\n")
	b.WriteString("- Réponds UNIQUEMENT à partir de ce contexte\n")
	b.WriteString("- Assemble les différents extraits pour formuler une réponse complète\n")
	b.WriteString("- Si la réponse n'est PAS dans le contexte, réponds poliment : " + notFoundReply + "\n")
	b.WriteString("- N'invente jamais d'information absente du contexte\n")
	b.WriteString("\n**CONTEXTE :**\n")
	b.WriteString(context)
	b.WriteString("\n\n**Rappel :** Appuie-toi seulement sur le contexte ci-dessus et assemble les extraits pour une réponse complète.")
	return b.String()
}

func factualInstructions(prompt, context, question string) string {
	formula := isFormulaQuestion(question)
	contextLower := strings.ToLower(context)
	hasExpress := strings.Contains(contextLower, "express")
	hasFormuleExpress := hasExpress && strings.Contains(contextLower, "formule")

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n**CONSIGNES :**\n")
	b.WriteString("- Le contexte ci-dessous provient des documents vectorisés de l'entreprise\n")
	b.WriteString("- Réponds UNIQUEMENT à partir de ce contexte\n")
	b.WriteString("- **QUESTION FACTUELLE** : parcours le contexte ENTIER avec soin avant de répondre\n")
	b.WriteString("  * Une même information peut être écrite de plusieurs façons (majuscules ou minuscules, avec ou sans guillemets)\n")
	b.WriteString("  * \"Formule Express\", \"formule express\" et \"Express\" désignent la même chose\n")
	b.WriteString("  * Un prix peut s'écrire \"14,50 €\", \"14.50€\", \"14,50 euros\" ou \"14.50 EUR\"\n")
	b.WriteString("  * Si l'information apparaît quelque part dans le contexte, tu DOIS la donner\n")
	if formula {
		b.WriteString("  * **QUESTION SUR UNE FORMULE** :\n")
		fmt.Fprintf(&b, "  * Le mot \"express\" %s dans le contexte\n", presence(hasExpress))
		fmt.Fprintf(&b, "  * L'expression \"formule express\" %s dans le contexte\n", presence(hasFormuleExpress))
		b.WriteString("  * Repère les mots \"Formule\", \"Express\", \"Complète\" quelle que soit leur casse\n")
		b.WriteString("  * Les formules sont souvent regroupées sous une rubrique \"Formules\" ou \"Formules du Midi\"\n")
		if hasExpress {
			b.WriteString("  * Le mot \"express\" figure dans le contexte : donne le prix de la formule Express si elle y est mentionnée\n")
		}
	}
	b.WriteString("- Si la réponse n'est PAS dans le contexte, réponds poliment : " + notFoundReply + "\n")
	b.WriteString("- N'invente jamais d'information absente du contexte\n")
	b.WriteString("\n**CONTEXTE :**\n")
	b.WriteString(context)
	b.WriteString("\n\n**Rappel :** Appuie-toi seulement sur le contexte ci-dessus. Pour cette question factuelle")
	if formula {
		b.WriteString(" sur les formules")
	}
	b.WriteString(", relis CHAQUE ligne du contexte avant de répondre.")
	if hasExpress {
		b.WriteString(" Le mot \"express\" est présent dans le contexte : trouve cette information et donne-la.")
	}
	return b.String()
}

func presence(found bool) string {
	if found {
		return "EST présent"
	}
	return "N'EST PAS présent"
}
