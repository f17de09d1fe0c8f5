package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests of the listed types. Stylesheets are never
// blocked: every probe depends on the portal's own CSS.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	block := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		if rt, ok := resourceType(t); ok {
			block[rt] = true
		}
	}
	if len(block) == 0 {
		return nil
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func resourceType(name string) (proto.NetworkResourceType, bool) {
	switch strings.TrimSuffix(strings.ToLower(name), "s") {
	case "image":
		return proto.NetworkResourceTypeImage, true
	case "font":
		return proto.NetworkResourceTypeFont, true
	case "media":
		return proto.NetworkResourceTypeMedia, true
	}
	return "", false
}
