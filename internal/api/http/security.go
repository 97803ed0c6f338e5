package http

// SecurityLevel is the credential a route requires.
type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Valid access token
	SecurityStaff                       // Access token with admin or lab_tech role
)

// EndpointSecurityConfig maps route names to their required security level.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Public
	"health":  SecurityPublic,
	"metrics": SecurityPublic,
	// The cron trigger checks its own key.
	"cron": SecurityPublic,

	// Tools
	"tools.list":    SecurityAccess,
	"tools.get":     SecurityAccess,
	"tools.history": SecurityAccess,
	"tools.create":  SecurityStaff,

	// Borrowing
	"tools.borrow":        SecurityAccess,
	"transactions.extend": SecurityAccess,
	"transactions.return": SecurityAccess,

	// Maintenance and administrative status
	"tools.maintenance.schedule": SecurityStaff,
	"tools.maintenance.complete": SecurityStaff,
	"tools.status":               SecurityStaff,

	// Notifications
	"notifications.list": SecurityAccess,
	"notifications.read": SecurityAccess,
}

// GetSecurityLevel returns the level for a route. Unknown routes require an
// access token.
func GetSecurityLevel(route string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[route]; ok {
		return level
	}
	return SecurityAccess
}
