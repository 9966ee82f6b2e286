// Package seed loads the starter translation memory and glossary.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// PairStore is the memory store write path.
type PairStore interface {
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, p domain.TranslationPair) (int64, error)
}

// TermStore is the glossary store write path.
type TermStore interface {
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, g domain.GlossaryTerm) (int64, error)
}

// Result reports how many rows each table received.
type Result struct {
	Pairs int
	Terms int
}

// Pairs returns the starter translation memory.
func Pairs() []domain.TranslationPair {
	pair := func(src, dst, dom string, conf float64) domain.TranslationPair {
		return domain.TranslationPair{
			SourceText:     src,
			TargetText:     dst,
			SourceLanguage: domain.DefaultSourceLanguage,
			TargetLanguage: "fr",
			Domain:         dom,
			Confidence:     conf,
			Metadata:       map[string]any{"origin": "seed"},
		}
	}
	return []domain.TranslationPair{
		pair("The server is down", "Le serveur est hors service", "infrastructure", 0.95),
		pair("Please restart the application", "Veuillez redémarrer l'application", "troubleshooting", 0.9),
		pair("Database connection failed", "La connexion à la base de données a échoué", "database", 0.98),
		pair("Authentication required", "Authentification requise", "security", 0.92),
		pair("Invalid input format", "Format d'entrée invalide", "validation", 0.88),
	}
}

// Terms returns the starter glossary.
func Terms() []domain.GlossaryTerm {
	term := func(t, pref, notes string) domain.GlossaryTerm {
		return domain.GlossaryTerm{
			Term:                 t,
			PreferredTranslation: pref,
			TargetLanguage:       "fr",
			Notes:                notes,
			Domain:               "technology",
		}
	}
	return []domain.GlossaryTerm{
		term("cloud server", "serveur cloud", "Infrastructure informatique"),
		term("API", "API", "Interface de programmation d'applications"),
		term("database", "base de données", "Système de gestion de données"),
		term("machine learning", "apprentissage automatique", "IA et data science"),
		term("neural network", "réseau de neurones", "Architecture d'IA"),
		term("algorithm", "algorithme", "Méthode de calcul"),
		term("framework", "framework", "Structure de développement"),
		term("deployment", "déploiement", "Mise en production"),
		term("debugging", "débogage", "Processus de correction"),
		term("authentication", "authentification", "Sécurité et accès"),
		term("authorization", "autorisation", "Contrôle d'accès"),
		term("cache", "cache", "Mémoire temporaire"),
		term("endpoint", "point de terminaison", "API endpoint"),
		term("middleware", "middleware", "Logiciel intermédiaire"),
		term("microservice", "microservice", "Architecture logicielle"),
	}
}

// Run inserts the starter data into each table that is empty. Non-empty tables are
// left untouched.
func Run(ctx context.Context, pairs PairStore, terms TermStore, logger *zap.Logger) (Result, error) {
	var res Result

	n, err := pairs.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count pairs: %w", err)
	}
	if n == 0 {
		for _, p := range Pairs() {
			if _, err := pairs.Add(ctx, p); err != nil {
				return res, fmt.Errorf("seed pair %q: %w", p.SourceText, err)
			}
			res.Pairs++
		}
	}

	n, err = terms.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count glossary terms: %w", err)
	}
	if n == 0 {
		for _, g := range Terms() {
			if _, err := terms.Add(ctx, g); err != nil {
				return res, fmt.Errorf("seed term %q: %w", g.Term, err)
			}
			res.Terms++
		}
	}

	if res.Pairs > 0 || res.Terms > 0 {
		logger.Info("Starter data loaded", zap.Int("pairs", res.Pairs), zap.Int("terms", res.Terms))
	}
	return res, nil
}
