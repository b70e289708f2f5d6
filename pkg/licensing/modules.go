package licensing

// Category groups modules for role-based visibility.
type Category string

const (
	CategoryCore    Category = "core"
	CategoryBilling Category = "billing"
	CategoryReports Category = "reports"
	CategoryAI      Category = "ai"
	CategoryAdmin   Category = "admin"
)

// Module identifiers.
const (
	ModuleDashboard  = "dashboard"
	ModuleClients    = "clients"
	ModuleCases      = "cases"
	ModuleDocuments  = "documents"
	ModuleCalendar   = "calendar"
	ModuleTasks      = "tasks"
	ModuleBilling    = "billing"
	ModuleEInvoicing = "e_invoicing"
	ModuleESignature = "e_signature"
	ModuleReports    = "reports"
	ModuleAIResearch = "ai_research"
	ModuleAIDrafting = "ai_drafting"
	ModuleTeam       = "team"
)

// Module describes one functional area of the application.
type Module struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Route           string   `json:"route"`
	Category        Category `json:"category"`
	MinTier         Tier     `json:"min_tier"`
	RequiredFeature string   `json:"required_feature,omitempty"`
	RequiresAI      bool     `json:"requires_ai,omitempty"`
}

var defaultModules = []Module{
	{ID: ModuleDashboard, Name: "Dashboard", Route: "/dashboard", Category: CategoryCore, MinTier: TierBase},
	{ID: ModuleClients, Name: "Clients", Route: "/clients", Category: CategoryCore, MinTier: TierBase},
	{ID: ModuleCases, Name: "Cases", Route: "/cases", Category: CategoryCore, MinTier: TierBase, RequiredFeature: FeatureCaseManagement},
	{ID: ModuleDocuments, Name: "Documents", Route: "/documents", Category: CategoryCore, MinTier: TierBase, RequiredFeature: FeatureDocumentStorage},
	{ID: ModuleCalendar, Name: "Calendar", Route: "/calendar", Category: CategoryCore, MinTier: TierBase, RequiredFeature: FeatureCalendar},
	{ID: ModuleTasks, Name: "Tasks", Route: "/tasks", Category: CategoryCore, MinTier: TierBase},
	{ID: ModuleBilling, Name: "Billing", Route: "/billing", Category: CategoryBilling, MinTier: TierBase, RequiredFeature: FeatureBilling},
	{ID: ModuleEInvoicing, Name: "Electronic Invoicing", Route: "/billing/electronic", Category: CategoryBilling, MinTier: TierPro, RequiredFeature: FeatureEInvoicing},
	{ID: ModuleESignature, Name: "E-Signature", Route: "/documents/signatures", Category: CategoryCore, MinTier: TierPro, RequiredFeature: FeatureESignature},
	{ID: ModuleReports, Name: "Reports", Route: "/reports", Category: CategoryReports, MinTier: TierEnterprise, RequiredFeature: FeatureBIReporting},
	{ID: ModuleAIResearch, Name: "AI Legal Research", Route: "/ai/research", Category: CategoryAI, MinTier: TierPro, RequiresAI: true},
	{ID: ModuleAIDrafting, Name: "AI Drafting", Route: "/ai/drafting", Category: CategoryAI, MinTier: TierPro, RequiredFeature: FeatureAIDrafting, RequiresAI: true},
	{ID: ModuleTeam, Name: "Team", Route: "/settings/team", Category: CategoryAdmin, MinTier: TierBase},
}
