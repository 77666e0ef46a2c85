package browser

// stealthScript patches the properties headless-detection scripts probe
// before any page script runs.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

	window.chrome = window.chrome || { runtime: {} };

	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en'],
	});

	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: originalQuery(parameters)
	);
})();`
