package cookie

import "strings"

// platform lists the cookies that prove a logged-in browser profile and
// the host substrings they must belong to.
type platform struct {
	required []string
	domains  []string
}

var platforms = map[string]platform{
	"xhs":   {required: []string{"web_session", "a1"}, domains: []string{"xiaohongshu.com"}},
	"dy":    {required: []string{"sessionid", "ttwid"}, domains: []string{"douyin.com", "tiktok.com"}},
	"bili":  {required: []string{"SESSDATA", "bili_jct"}, domains: []string{"bilibili.com"}},
	"ks":    {required: []string{"did", "kuaishou.server.web_st"}, domains: []string{"kuaishou.com"}},
	"wb":    {required: []string{"SUB", "SUBP"}, domains: []string{"weibo.com", "sina.com.cn"}},
	"tieba": {required: []string{"BDUSS", "STOKEN"}, domains: []string{"baidu.com"}},
	"zhihu": {required: []string{"z_c0"}, domains: []string{"zhihu.com"}},
}

// Supported reports whether name is a platform the checker knows. Names are
// case-insensitive.
func Supported(name string) bool {
	_, ok := platforms[strings.ToLower(name)]
	return ok
}

func (p platform) wants(name string) bool {
	for _, r := range p.required {
		if r == name {
			return true
		}
	}
	return false
}

func (p platform) matchesHost(host string) bool {
	for _, d := range p.domains {
		if containsFold(host, d) {
			return true
		}
	}
	return false
}
