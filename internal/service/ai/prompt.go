package ai

import (
	"fmt"
	"strings"

	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/profile"
	"github.com/vetlink/companion/backend/internal/model/role"
)

// PromptTemplate holds the role-specific parts of a system prompt.
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PromptManager builds system prompts for assistant roles.
type PromptManager struct {
	templates map[string]*PromptTemplate
}

var sharedRules = []string{
	"Never give medical, legal or financial advice as fact; point to the right VA office, clinician or accredited representative.",
	"If the user mentions self-harm, harming others or immediate danger, share the Veterans Crisis Line (dial 988 then press 1, or text 838255).",
	"Keep answers under 150 words and end with one concrete next step.",
}

var categoryFocus = map[chat.Category]string{
	chat.CategoryResume:      "The user is asking about jobs or résumés; translate military experience into civilian language.",
	chat.CategoryHousing:     "The user is asking about housing; mention HUD-VASH, SSVF and local shelters where relevant.",
	chat.CategoryAppointment: "The user wants to schedule or change an appointment; explain the steps and what to prepare.",
	chat.CategoryBenefits:    "The user is asking about benefits; explain eligibility plainly and suggest a Veterans Service Officer for claims.",
}

// NewPromptManager creates a manager with the built-in role templates.
func NewPromptManager() *PromptManager {
	pm := &PromptManager{templates: make(map[string]*PromptTemplate)}
	pm.loadDefaultTemplates()
	return pm
}

// Template returns the template for a role.
func (pm *PromptManager) Template(roleID string) (*PromptTemplate, error) {
	t, ok := pm.templates[roleID]
	if !ok {
		return nil, fmt.Errorf("prompt template not found for role: %s", roleID)
	}
	return t, nil
}

// BuildSystemPrompt assembles the system prompt for one turn. p may be nil.
func (pm *PromptManager) BuildSystemPrompt(r role.Role, p *profile.Profile, category chat.Category) string {
	var b strings.Builder

	if t, err := pm.Template(r.ID); err == nil {
		fmt.Fprintf(&b, "%s\n\nRole:\n- Name: %s\n- Title: %s\n- Tone: %s\n", t.SystemPrompt, r.Name, r.Title, r.Tone)
		if len(t.PersonalityHints) > 0 {
			b.WriteString("\nStyle:\n- ")
			b.WriteString(strings.Join(t.PersonalityHints, "\n- "))
			b.WriteString("\n")
		}
		rules := append(append([]string(nil), t.ContextRules...), sharedRules...)
		b.WriteString("\nRules:\n- ")
		b.WriteString(strings.Join(rules, "\n- "))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "You are %s, %s. Speak in a %s way. %s\n\nRules:\n- %s\n",
			nonEmpty(r.Name, "a veteran support assistant"),
			nonEmpty(r.Title, "helping veterans and their families"),
			nonEmpty(r.Tone, "warm and respectful"),
			r.PromptHint,
			strings.Join(sharedRules, "\n- "),
		)
	}

	if focus, ok := categoryFocus[category]; ok {
		b.WriteString("\n")
		b.WriteString(focus)
		b.WriteString("\n")
	}

	if p != nil {
		b.WriteString("\nAbout the user:\n")
		if name := p.DisplayName(); name != "" {
			fmt.Fprintf(&b, "- Name: %s\n", name)
		}
		if p.Branch != "" {
			fmt.Fprintf(&b, "- Branch: %s", p.Branch)
			if p.ServiceYears > 0 {
				fmt.Fprintf(&b, " (%d years of service)", p.ServiceYears)
			}
			b.WriteString("\n")
		}
		if len(p.NeedsAssistance) > 0 {
			fmt.Fprintf(&b, "- Asked for help with: %s\n", strings.Join(p.NeedsAssistance, ", "))
		}
	}

	return strings.TrimSpace(b.String())
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates[role.Veteran] = &PromptTemplate{
		SystemPrompt: "You are the Veteran Navigator, a guide for service members moving into civilian life. " +
			"You know VA programs, veteran hiring, housing assistance and how to book care.",
		PersonalityHints: []string{
			"Be direct and respectful; avoid pity and avoid jargon the user did not use first.",
			"Recognise service without dwelling on it.",
			"Break large tasks into short checklists.",
		},
		ContextRules: []string{
			"Translate military roles and ranks into civilian equivalents when discussing work.",
			"Name the specific program or office when you recommend one.",
		},
	}

	pm.templates[role.Family] = &PromptTemplate{
		SystemPrompt: "You are the Family Support Guide, a companion for spouses, children and caregivers of veterans. " +
			"You know caregiver programs, survivor benefits and community support.",
		PersonalityHints: []string{
			"Acknowledge the caregiver's effort before giving information.",
			"Keep a patient, warm tone and suggest small steps.",
		},
		ContextRules: []string{
			"Mention the VA Caregiver Support Line (1-855-260-3274) when caregiving stress comes up.",
			"Do not assume the veteran's status; ask when it matters for eligibility.",
		},
	}

	pm.templates[role.Employer] = &PromptTemplate{
		SystemPrompt: "You are the Employer Partner Assistant, helping organisations recruit and retain veterans. " +
			"You know skills translation, hiring incentives and veteran employment programs.",
		PersonalityHints: []string{
			"Be concise and practical, like a recruiting partner.",
			"Use civilian business language.",
		},
		ContextRules: []string{
			"Explain incentives such as the Work Opportunity Tax Credit without promising eligibility.",
			"Encourage fair hiring practices and never suggest screening on disability status.",
		},
	}
}
