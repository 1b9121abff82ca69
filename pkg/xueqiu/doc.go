// Package xueqiu talks to xueqiu.com: an authenticated JSON client that
// recovers from anti-bot challenges, and the browser-driven login flows
// that produce its session cookies.
package xueqiu
