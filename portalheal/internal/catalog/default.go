package catalog

// Default returns the built-in catalog of NetSapiens portal variants. The
// legacy jQuery portal comes first, then the React shell, then the
// Bootstrap-based releases.
func Default() *Catalog {
	return &Catalog{
		Profiles: []Profile{
			{
				Name: "legacy",
				Selectors: map[Role]string{
					RoleNavigationContainer: "#navigation",
					RoleMainContent:         "#content",
					RoleSidebar:             "#sidebar",
					RoleHeader:              "#header",
					RoleNavigationList:      "#nav-buttons",
					RoleRootContainer:       "#container",
				},
			},
			{
				Name: "react",
				Selectors: map[Role]string{
					RoleNavigationContainer: "[data-testid='app-nav']",
					RoleMainContent:         ".content",
					RoleSidebar:             "[data-testid='app-sidebar']",
					RoleHeader:              "header[role='banner']",
					RoleNavigationList:      "[data-testid='app-nav'] ul",
					RoleRootContainer:       "#root",
				},
			},
			{
				Name: "bootstrap",
				Selectors: map[Role]string{
					RoleNavigationContainer: ".navbar",
					RoleMainContent:         ".container-fluid .content",
					RoleSidebar:             ".sidebar",
					RoleHeader:              ".navbar-header",
					RoleNavigationList:      ".navbar-nav",
					RoleRootContainer:       ".container-fluid",
				},
			},
		},
		Signatures: []Signature{
			{Key: "ns-legacy", Selector: "#nav-buttons"},
			{Key: "ns-react", Selector: "#root [data-testid]"},
			{Key: "ns-bootstrap", Selector: ".navbar-fixed-top"},
			{Key: "jquery-ui", Selector: ".ui-widget"},
			{Key: "grid4", Selector: "link[href*='grid4']"},
		},
	}
}
